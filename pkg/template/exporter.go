package template

import (
	"context"

	"github.com/formapi/formapi/pkg/observability"
	"github.com/formapi/formapi/pkg/store"
)

// Exporter renders persisted entities back into the template wire format:
// the structural inverse of import, with identifiers mapped back to
// machine names.
type Exporter struct {
	porters []Porter
	log     *observability.Logger
}

// NewExporter creates an exporter over the given porter chain.
func NewExporter(porters []Porter, log *observability.Logger) *Exporter {
	return &Exporter{porters: porters, log: log}
}

// Export produces a template document from the persisted state. Entities
// without a machine name were never template-managed and are left out.
func (ex *Exporter) Export(ctx context.Context) (store.Document, error) {
	maps := make(Maps, len(ex.porters))
	for _, porter := range ex.porters {
		m, err := porter.BuildMap(ctx)
		if err != nil {
			return nil, err
		}
		maps[porter.Key()] = m
	}

	tmpl := store.Document{}
	for _, porter := range ex.porters {
		collection := map[string]interface{}{}
		for machineName, id := range maps[porter.Key()] {
			doc, err := porter.Model().Read(ctx, store.Query{"_id": id})
			if err != nil {
				return nil, err
			}
			collection[machineName] = map[string]interface{}(porter.Export(doc, maps))
		}
		if len(collection) > 0 {
			tmpl[porter.Key()] = collection
		}
	}
	ex.log.WithField("entities", len(tmpl)).Debug("exported template")
	return tmpl, nil
}
