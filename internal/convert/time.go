package convert

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Time converts v to a UTC time with millisecond precision.
// Accepted inputs: primitive.DateTime, time.Time (and pointers to it),
// primitive.Timestamp, and {"$date": ...} wrappers holding any of those or
// an int64 of milliseconds. Anything else yields absence.
func Time(v any) (time.Time, bool) {
	switch val := v.(type) {
	case primitive.DateTime:
		return val.Time().UTC(), true
	case time.Time:
		if val.IsZero() {
			return time.Time{}, false
		}
		return val.UTC().Truncate(time.Millisecond), true
	case *time.Time:
		if val == nil {
			return time.Time{}, false
		}
		return Time(*val)
	case primitive.Timestamp:
		return time.Unix(int64(val.T), 0).UTC(), true
	case bson.D:
		for _, e := range val {
			if e.Key == "$date" {
				return dateWrapper(e.Value)
			}
		}
	case bson.M:
		if inner, ok := val["$date"]; ok {
			return dateWrapper(inner)
		}
	case map[string]any:
		if inner, ok := val["$date"]; ok {
			return dateWrapper(inner)
		}
	}
	return time.Time{}, false
}

func dateWrapper(v any) (time.Time, bool) {
	switch val := v.(type) {
	case int64:
		return primitive.DateTime(val).Time().UTC(), true
	case int32:
		return primitive.DateTime(val).Time().UTC(), true
	case float64:
		return primitive.DateTime(int64(val)).Time().UTC(), true
	case string:
		t, err := time.Parse(time.RFC3339Nano, val)
		if err != nil {
			return time.Time{}, false
		}
		return t.UTC().Truncate(time.Millisecond), true
	}
	return Time(v)
}

// DateTime converts v to its wire timestamp form.
func DateTime(v any) (primitive.DateTime, bool) {
	t, ok := Time(v)
	if !ok {
		return 0, false
	}
	return primitive.NewDateTimeFromTime(t), true
}
