// Package pricelist содержит прейскурант на чистку вещей.
package pricelist

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
)

// Цены по умолчанию в фэнях. Прейскурант не редактируется через API,
// но может быть заменён целиком файлом из конфигурации.
var defaultPrices = map[string]int64{
	"毛衫":  2000,
	"裤子":  2000,
	"衬衫":  1500,
	"鞋":   1500,
	"大衣":  3000,
	"羽绒服": 3500,
	"被子":  4000,
	"貂":   30000,
}

// Item описывает одну позицию прейскуранта с ценой в юанях.
type Item struct {
	Kind  string  `json:"kind"`
	Price float64 `json:"price"`
}

// PriceList предоставляет доступ к прейскуранту только на чтение.
type PriceList struct {
	prices map[string]int64
}

// New возвращает прейскурант по умолчанию.
func New() *PriceList {
	prices := make(map[string]int64, len(defaultPrices))
	for k, v := range defaultPrices {
		prices[k] = v
	}
	return &PriceList{prices: prices}
}

// Load читает прейскурант из JSON-файла с ценами в юанях.
// Файл полностью заменяет прейскурант по умолчанию.
func Load(path string) (*PriceList, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read price list: %w", err)
	}

	var yuan map[string]float64
	if err := json.Unmarshal(data, &yuan); err != nil {
		return nil, fmt.Errorf("parse price list: %w", err)
	}
	if len(yuan) == 0 {
		return nil, fmt.Errorf("price list %s is empty", path)
	}

	prices := make(map[string]int64, len(yuan))
	for kind, price := range yuan {
		if price < 0 {
			return nil, fmt.Errorf("price list %s: negative price for %q", path, kind)
		}
		prices[kind] = int64(math.Round(price * 100))
	}

	return &PriceList{prices: prices}, nil
}

// Price возвращает цену вещи в фэнях и признак наличия позиции.
func (p *PriceList) Price(kind string) (int64, bool) {
	v, ok := p.prices[kind]
	return v, ok
}

// Items возвращает все позиции прейскуранта, отсортированные по названию.
func (p *PriceList) Items() []Item {
	items := make([]Item, 0, len(p.prices))
	for kind, fen := range p.prices {
		items = append(items, Item{Kind: kind, Price: float64(fen) / 100})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Kind < items[j].Kind })
	return items
}
