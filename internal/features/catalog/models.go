// Package catalog хранит соответствие лотов маркетплейса подаркам Telegram
// и находит подарок по описанию заказа.
// models.go описывает документ настроек gift_lots.json.
package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrLotNotFound — лота с таким ключом нет.
	ErrLotNotFound = errors.New("лот не найден")
	// ErrMissingLotMapping — в загруженном JSON нет ключа lot_mapping.
	ErrMissingLotMapping = errors.New("в файле нет ключа 'lot_mapping'")
	// ErrMalformedJSON — загруженный файл не является корректным JSON.
	ErrMalformedJSON = errors.New("не удалось считать JSON")
)

// LotDefinition — один лот: название на маркетплейсе и подарок, который за него выдаётся.
type LotDefinition struct {
	Key      string `json:"-"`
	Name     string `json:"name"`
	GiftID   int64  `json:"gift_id"`
	GiftName string `json:"gift_name"`
}

// LotMapping — лоты в порядке добавления.
// В JSON это объект {"lot_1": {...}, ...}, порядок ключей сохраняется.
type LotMapping []LotDefinition

func (m LotMapping) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, lot := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(lot.Key)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(lot)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (m *LotMapping) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("lot_mapping должен быть объектом")
	}

	out := LotMapping{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string)
		var lot LotDefinition
		if err := dec.Decode(&lot); err != nil {
			return fmt.Errorf("лот %s: %w", key, err)
		}
		lot.Key = key
		out = append(out, lot)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*m = out
	return nil
}

func (m LotMapping) index(key string) int {
	for i, lot := range m {
		if lot.Key == key {
			return i
		}
	}
	return -1
}

func (m LotMapping) clone() LotMapping {
	return append(LotMapping(nil), m...)
}

// Settings — документ настроек автовыдачи.
type Settings struct {
	Lots        LotMapping `json:"lot_mapping"`
	AutoRefunds bool       `json:"auto_refunds"`
	ActiveLots  bool       `json:"active_lots"`
}

func (s Settings) clone() Settings {
	s.Lots = s.Lots.clone()
	return s
}

// settingsDoc — документ в том виде, как он лежит в хранилище: ключи могут отсутствовать.
type settingsDoc struct {
	Lots        *LotMapping `json:"lot_mapping"`
	AutoRefunds *bool       `json:"auto_refunds"`
	ActiveLots  *bool       `json:"active_lots"`
}

// DefaultSettings — настройки первого запуска.
func DefaultSettings() Settings {
	return Settings{
		Lots: LotMapping{{
			Key:      "lot_1",
			Name:     "Тестовый лот",
			GiftID:   5170690322832818290,
			GiftName: "Кольцо 💍",
		}},
		AutoRefunds: true,
		ActiveLots:  true,
	}
}

// Page — страница списка лотов в админ-панели.
type Page struct {
	Lots    []LotDefinition
	Number  int
	HasPrev bool
	HasNext bool
}
