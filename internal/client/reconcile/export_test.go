package reconcile

import "github.com/fieldkeeper/fieldsync/internal/client/models"

func (r *Reconciler) SetHook(fn func(models.Table) error) { r.hook = fn }
