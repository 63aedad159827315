package mongo

import (
	"fmt"

	"github.com/rbaliyan/smsbox/store"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func mapKey(key string) string {
	if key == "id" {
		return "_id"
	}
	return key
}

// objectID converts an id filter value. Strings that are not valid object
// ids can never match, so they map to the nil id.
func objectID(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	oid, err := bson.ObjectIDFromHex(s)
	if err != nil {
		return bson.NilObjectID
	}
	return oid
}

// buildFilter combines filters with $and so repeated keys do not overwrite
// each other.
func buildFilter(filters []store.Filter) (bson.M, error) {
	if len(filters) == 0 {
		return bson.M{}, nil
	}

	conds := make(bson.A, 0, len(filters))
	for _, f := range filters {
		key := mapKey(f.Key())
		value := f.Value()
		if key == "_id" {
			if set, ok := value.([]any); ok {
				ids := make([]any, len(set))
				for i, v := range set {
					ids[i] = objectID(v)
				}
				value = ids
			} else {
				value = objectID(value)
			}
		}

		var cond bson.M
		switch f.Operator() {
		case "eq", "":
			cond = bson.M{key: value}
		case "ne":
			cond = bson.M{key: bson.M{"$ne": value}}
		case "gt":
			cond = bson.M{key: bson.M{"$gt": value}}
		case "gte":
			cond = bson.M{key: bson.M{"$gte": value}}
		case "lt":
			cond = bson.M{key: bson.M{"$lt": value}}
		case "lte":
			cond = bson.M{key: bson.M{"$lte": value}}
		case "in":
			cond = bson.M{key: bson.M{"$in": value}}
		case "nin":
			cond = bson.M{key: bson.M{"$nin": value}}
		default:
			return nil, fmt.Errorf("%w: unsupported operator: %s", store.ErrFilterInvalid, f.Operator())
		}
		conds = append(conds, cond)
	}

	if len(conds) == 1 {
		return conds[0].(bson.M), nil
	}
	return bson.M{"$and": conds}, nil
}
