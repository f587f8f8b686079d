package loader

import (
	"context"

	"github.com/rowloom/rowloom/internal/store"
)

// resolveOwning resolves an owning to-one relation to the foreign key value
// to merge into the owner's attributes before the owner is persisted.
//
// An absent lookup value, or a miss without create_if_missing, yields no
// foreign key: the owner is persisted without the link, which is a valid,
// silent outcome. Only underlying store failures produce an error.
func (l *Loader) resolveOwning(ctx context.Context, entity string, rd *relationData) (fkCol string, fkVal any, err error) {
	if rd.lookup == nil {
		return "", nil, nil
	}

	lookupValue := rd.data[rd.lookup.Field]
	if isEmpty(lookupValue) {
		return "", nil, nil
	}

	rel := rd.rel
	related, err := l.store.FindBy(ctx, rel.Related, store.Record{rd.lookup.Field: lookupValue})
	if err != nil {
		return "", nil, l.resolutionError(entity, rd, lookupValue, err)
	}

	if related == nil {
		if !rd.lookup.CreateIfMissing {
			l.skipped = append(l.skipped, SkippedLink{
				Entity:   entity,
				Relation: rd.name,
				Field:    rd.lookup.Field,
				Value:    lookupValue,
			})
			return "", nil, nil
		}

		attrs := make(store.Record, len(rd.data))
		for k, v := range rd.data {
			if k != rd.lookup.Field {
				attrs[k] = v
			}
		}
		related, _, err = l.store.GetOrCreate(ctx, rel.Related, rd.lookup.Field, lookupValue, attrs)
		if err != nil {
			return "", nil, l.resolutionError(entity, rd, lookupValue, err)
		}
	}

	return rel.ForeignKey, related[rel.RelatedKey], nil
}

func (l *Loader) resolutionError(entity string, rd *relationData, value any, err error) error {
	return &ResolutionError{
		Entity:          entity,
		Relation:        rd.name,
		LookupField:     rd.lookup.Field,
		LookupValue:     value,
		CreateIfMissing: rd.lookup.CreateIfMissing,
		Kind:            Classify(err),
		Err:             err,
	}
}
