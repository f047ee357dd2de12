package client

import (
	"fmt"

	"github.com/fieldkeeper/fieldsync/internal/common"
)

var (
	ErrUnavailable  = fmt.Errorf("%w: server unavailable", common.ErrTransport)
	ErrUnauthorized = fmt.Errorf("%w: unauthorized", common.ErrTransport)
)
