package catalog

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"storefront-catalog-service/internal/domain"
)

const untitledName = "Untitled"

// Normalize converts one raw record into the canonical product shape.
// It never fails: missing or malformed fields are replaced with safe defaults.
// index is the record's position in its snapshot and seeds the fallback ID.
func Normalize(index int, rec domain.Record, now time.Time) domain.Product {
	p := domain.Product{
		ID:          normalizeID(rec["id"]),
		Name:        firstString(rec, "name", "title"),
		Description: firstString(rec, "description", "shortDesc"),
		Price:       normalizePrice(rec["price"]),
		Category:    normalizeCategory(rec["category"]),
		Image:       firstString(rec, "image"),
		Featured:    normalizeBool(rec["featured"]),
		Popular:     normalizeBool(rec["popular"]),
		CreatedAt:   now,
	}
	if p.ID == "" {
		p.ID = fmt.Sprintf("snapshot-%d", index)
	}
	if p.Name == "" {
		p.Name = untitledName
	}
	for _, key := range []string{"created", "createdAt"} {
		if t, ok := normalizeTime(rec[key]); ok {
			p.CreatedAt = t
			break
		}
	}
	return p
}

func normalizeID(v any) string {
	switch id := v.(type) {
	case string:
		return strings.TrimSpace(id)
	case json.Number:
		if i, err := id.Int64(); err == nil {
			return strconv.FormatInt(i, 10)
		}
		return id.String()
	case int:
		return strconv.Itoa(id)
	case int32:
		return strconv.FormatInt(int64(id), 10)
	case int64:
		return strconv.FormatInt(id, 10)
	case uint64:
		return strconv.FormatUint(id, 10)
	case float64:
		if math.IsNaN(id) || math.IsInf(id, 0) {
			return ""
		}
		return strconv.FormatFloat(id, 'f', -1, 64)
	}
	return ""
}

func firstString(rec domain.Record, keys ...string) string {
	for _, key := range keys {
		if s, ok := rec[key].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

func normalizePrice(v any) float64 {
	var price float64
	switch n := v.(type) {
	case float64:
		price = n
	case float32:
		price = float64(n)
	case int:
		price = float64(n)
	case int64:
		price = float64(n)
	case json.Number:
		price, _ = n.Float64()
	case string:
		price, _ = strconv.ParseFloat(strings.TrimSpace(n), 64)
	}
	if math.IsNaN(price) || math.IsInf(price, 0) || price < 0 {
		return 0
	}
	return price
}

func normalizeCategory(v any) domain.Category {
	s, _ := v.(string)
	c := domain.Category(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return domain.CategoryServices
	}
	return c
}

func normalizeBool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		return err == nil && parsed
	}
	return false
}

func normalizeTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, !t.IsZero()
	case *time.Time:
		if t != nil && !t.IsZero() {
			return *t, true
		}
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed, true
			}
		}
	case float64:
		if t > 0 {
			return time.UnixMilli(int64(t)).UTC(), true
		}
	case int64:
		if t > 0 {
			return time.UnixMilli(t).UTC(), true
		}
	case int:
		if t > 0 {
			return time.UnixMilli(int64(t)).UTC(), true
		}
	case json.Number:
		if ms, err := t.Int64(); err == nil && ms > 0 {
			return time.UnixMilli(ms).UTC(), true
		}
	case map[string]any:
		// exported Firestore/JS timestamps: {seconds, nanoseconds}
		secs := normalizePrice(t["seconds"])
		if secs > 0 {
			nanos := normalizePrice(t["nanoseconds"])
			return time.Unix(int64(secs), int64(nanos)).UTC(), true
		}
	}
	return time.Time{}, false
}
