// internal/infrastructure/transport/push/payload.go
package push

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"crypto-weather-sync/internal/types"
)

// ErrMalformedPayload - сообщение канала не содержит цен
var ErrMalformedPayload = errors.New("malformed push payload")

// DecodePrices разбирает сообщение канала цен.
// Поддерживаются два формата:
//
//	[{"id":"bitcoin","name":"Bitcoin","current_price":50000}]
//	{"bitcoin":"50000.12","ethereum":3000}
//
// Записи без id или с нечисловой, бесконечной или неположительной ценой пропускаются.
func DecodePrices(data []byte) ([]types.PriceSnapshot, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: invalid JSON", ErrMalformedPayload)
	}

	doc := gjson.ParseBytes(data)
	var out []types.PriceSnapshot

	switch {
	case doc.IsArray():
		doc.ForEach(func(_, item gjson.Result) bool {
			id := item.Get("id")
			if id.Type != gjson.String || strings.TrimSpace(id.String()) == "" {
				return true
			}
			price, ok := priceValue(item.Get("current_price"))
			if !ok {
				return true
			}
			out = append(out, types.PriceSnapshot{
				ID:    id.String(),
				Name:  item.Get("name").String(),
				Price: price,
			})
			return true
		})

	case doc.IsObject():
		doc.ForEach(func(key, value gjson.Result) bool {
			if strings.TrimSpace(key.String()) == "" {
				return true
			}
			price, ok := priceValue(value)
			if !ok {
				return true
			}
			out = append(out, types.PriceSnapshot{ID: key.String(), Price: price})
			return true
		})

	default:
		return nil, fmt.Errorf("%w: expected array or object", ErrMalformedPayload)
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no prices", ErrMalformedPayload)
	}
	return out, nil
}

// priceValue принимает число или строку с числом; цена должна быть конечной и > 0
func priceValue(v gjson.Result) (float64, bool) {
	var f float64
	switch v.Type {
	case gjson.Number:
		f = v.Float()
	case gjson.String:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v.String()), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}

	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return 0, false
	}
	return f, true
}
