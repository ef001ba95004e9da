package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// ErrInvalidCart is returned when a cart cannot be turned into a payment request.
var ErrInvalidCart = errors.New("invalid cart")

const DefaultCurrency = "gbp"

// CartLine is one product variant in the cart. UnitPrice is in minor currency units.
type CartLine struct {
	ProductID   string `json:"product_id"`
	VariantKey  string `json:"variant_key,omitempty"`
	UnitPrice   int64  `json:"unit_price"`
	Quantity    int    `json:"quantity"`
	DisplayName string `json:"display_name"`
	ImageRef    string `json:"image_ref,omitempty"`
}

func (l CartLine) Key() string {
	return l.ProductID + "|" + l.VariantKey
}

func (l CartLine) LineTotal() int64 {
	return l.UnitPrice * int64(l.Quantity)
}

// CartSnapshot represents the full cart state at checkout time
type CartSnapshot struct {
	Lines      []CartLine `json:"lines"`
	Currency   string     `json:"currency"`
	CapturedAt time.Time  `json:"captured_at"`
}

func NewCartSnapshot(lines []CartLine, currency string) *CartSnapshot {
	if currency == "" {
		currency = DefaultCurrency
	}
	cp := make([]CartLine, len(lines))
	copy(cp, lines)
	return &CartSnapshot{
		Lines:      cp,
		Currency:   strings.ToLower(currency),
		CapturedAt: time.Now().UTC(),
	}
}

// Validate checks the cart can be charged: non-empty, positive quantities,
// non-negative prices, at most one line per (product, variant).
func (s *CartSnapshot) Validate() error {
	if s == nil || len(s.Lines) == 0 {
		return fmt.Errorf("%w: cart is empty", ErrInvalidCart)
	}
	seen := make(map[string]struct{}, len(s.Lines))
	for i, l := range s.Lines {
		if strings.TrimSpace(l.ProductID) == "" {
			return fmt.Errorf("%w: line %d has no product id", ErrInvalidCart, i)
		}
		if l.Quantity < 1 {
			return fmt.Errorf("%w: line %d quantity %d", ErrInvalidCart, i, l.Quantity)
		}
		if l.UnitPrice < 0 {
			return fmt.Errorf("%w: line %d negative unit price", ErrInvalidCart, i)
		}
		if _, dup := seen[l.Key()]; dup {
			return fmt.Errorf("%w: duplicate line for %s", ErrInvalidCart, l.Key())
		}
		seen[l.Key()] = struct{}{}
	}
	return nil
}

// Subtotal is the amount charged for the cart, in minor units. Both the hosted
// session path and the payment intent path charge exactly this value.
func (s *CartSnapshot) Subtotal() int64 {
	if s == nil {
		return 0
	}
	var total int64
	for _, l := range s.Lines {
		total += l.LineTotal()
	}
	return total
}

func (s *CartSnapshot) ItemCount() int {
	if s == nil {
		return 0
	}
	n := 0
	for _, l := range s.Lines {
		n += l.Quantity
	}
	return n
}

func (s *CartSnapshot) Clone() *CartSnapshot {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Lines = make([]CartLine, len(s.Lines))
	copy(cp.Lines, s.Lines)
	return &cp
}

// Canonical renders the cart contents in a stable order, independent of the
// order lines were added in. Used to derive idempotency keys.
func (s *CartSnapshot) Canonical() string {
	if s == nil {
		return ""
	}
	parts := make([]string, 0, len(s.Lines))
	for _, l := range s.Lines {
		parts = append(parts, l.Key()+"|"+strconv.FormatInt(l.UnitPrice, 10)+"|"+strconv.Itoa(l.Quantity))
	}
	sort.Strings(parts)
	return s.Currency + ";" + strings.Join(parts, ";")
}

// Provider metadata values are capped at 500 characters, so the encoded
// snapshot is spread over numbered keys.
const (
	metadataChunkSize = 480
	metadataPrefix    = "cart_"
	metadataCountKey  = "cart_chunks"
)

// metadataLine keeps the payload small: the provider also caps the number of keys.
type metadataLine struct {
	ID  string `json:"i"`
	V   string `json:"v,omitempty"`
	P   int64  `json:"p"`
	Q   int    `json:"q"`
	N   string `json:"n"`
	Img string `json:"m,omitempty"`
}

type metadataCart struct {
	Currency string         `json:"c"`
	Lines    []metadataLine `json:"l"`
}

// EncodeMetadata serialises the snapshot into provider metadata entries so a
// later webhook can rebuild the order without a separate lookup.
func (s *CartSnapshot) EncodeMetadata() (map[string]string, error) {
	mc := metadataCart{Currency: s.Currency, Lines: make([]metadataLine, 0, len(s.Lines))}
	for _, l := range s.Lines {
		mc.Lines = append(mc.Lines, metadataLine{ID: l.ProductID, V: l.VariantKey, P: l.UnitPrice, Q: l.Quantity, N: l.DisplayName, Img: l.ImageRef})
	}
	raw, err := json.Marshal(mc)
	if err != nil {
		return nil, fmt.Errorf("marshal cart metadata: %w", err)
	}
	out := map[string]string{}
	encoded := string(raw)
	n := 0
	for len(encoded) > 0 {
		cut := chunkEnd(encoded, metadataChunkSize)
		out[metadataPrefix+strconv.Itoa(n)] = encoded[:cut]
		encoded = encoded[cut:]
		n++
	}
	out[metadataCountKey] = strconv.Itoa(n)
	return out, nil
}

// chunkEnd returns the byte offset after at most limit characters of s, so a
// chunk never splits a multi-byte character.
func chunkEnd(s string, limit int) int {
	cut := 0
	for chars := 0; cut < len(s) && chars < limit; chars++ {
		_, size := utf8.DecodeRuneInString(s[cut:])
		cut += size
	}
	return cut
}

var ErrNoCartMetadata = errors.New("no cart in metadata")

// DecodeCartMetadata reverses EncodeMetadata.
func DecodeCartMetadata(md map[string]string) (*CartSnapshot, error) {
	countRaw, ok := md[metadataCountKey]
	if !ok {
		return nil, ErrNoCartMetadata
	}
	count, err := strconv.Atoi(countRaw)
	if err != nil || count <= 0 {
		return nil, fmt.Errorf("invalid %s value %q", metadataCountKey, countRaw)
	}
	var b strings.Builder
	for i := 0; i < count; i++ {
		chunk, ok := md[metadataPrefix+strconv.Itoa(i)]
		if !ok {
			return nil, fmt.Errorf("cart metadata chunk %d missing", i)
		}
		b.WriteString(chunk)
	}
	var mc metadataCart
	if err := json.Unmarshal([]byte(b.String()), &mc); err != nil {
		return nil, fmt.Errorf("unmarshal cart metadata: %w", err)
	}
	lines := make([]CartLine, 0, len(mc.Lines))
	for _, l := range mc.Lines {
		lines = append(lines, CartLine{ProductID: l.ID, VariantKey: l.V, UnitPrice: l.P, Quantity: l.Q, DisplayName: l.N, ImageRef: l.Img})
	}
	return NewCartSnapshot(lines, mc.Currency), nil
}
