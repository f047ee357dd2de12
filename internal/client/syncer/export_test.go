package syncer

import "time"

func (o *Orchestrator) SetNow(now func() time.Time) { o.now = now }
