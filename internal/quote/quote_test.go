package quote

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func TestNormalizeSymbol_Valid(t *testing.T) {
	tests := map[string]string{
		"RELIANCE":       "RELIANCE",
		"  tcs ":         "TCS",
		"infy.ns":        "INFY",
		"M&M.BO":         "M&M",
		"BAJAJ-AUTO":     "BAJAJ-AUTO",
		"hdfcbank":       "HDFCBANK",
		"A1234567890123": "A1234567890123",
	}
	for in, want := range tests {
		got, err := NormalizeSymbol(in)
		if err != nil {
			t.Errorf("NormalizeSymbol(%q): unexpected error %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("NormalizeSymbol(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestNormalizeSymbol_Invalid(t *testing.T) {
	tests := []string{
		"",
		"   ",
		"1TCS",
		"TC S",
		"TOOLONGSYMBOLNAME12345",
		"TCS.",
		"TCS;DROP",
	}
	for _, in := range tests {
		if _, err := NormalizeSymbol(in); !errors.Is(err, ErrInvalidSymbol) {
			t.Errorf("expected ErrInvalidSymbol for %q, got %v", in, err)
		}
	}
}

func TestNormalizeSymbol_UnsupportedExchange(t *testing.T) {
	_, err := NormalizeSymbol("TCS.NY")
	if !errors.Is(err, ErrInvalidExchange) {
		t.Errorf("expected ErrInvalidExchange, got %v", err)
	}
}

func TestInstruments_Sorted(t *testing.T) {
	list := Instruments()
	if len(list) != 15 {
		t.Fatalf("expected 15 instruments, got %d", len(list))
	}
	for i := 1; i < len(list); i++ {
		if list[i-1].Symbol >= list[i].Symbol {
			t.Errorf("instruments not sorted at %d: %s >= %s", i, list[i-1].Symbol, list[i].Symbol)
		}
	}
}

func TestStatic_GetPrice(t *testing.T) {
	p := NewStatic(nil)
	price, err := p.GetPrice(context.Background(), "reliance")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !price.Equal(d(2450)) {
		t.Errorf("expected 2450, got %s", price)
	}

	if _, err := p.GetPrice(context.Background(), "NOPE"); !errors.Is(err, ErrUnknownSymbol) {
		t.Errorf("expected ErrUnknownSymbol, got %v", err)
	}
}

func TestSearch(t *testing.T) {
	qs, _ := NewStatic(nil).Quotes(context.Background())

	tests := []struct {
		q    string
		want []string
	}{
		{"", nil}, // everything
		{"tata", []string{"TCS", "TATASTEEL"}},
		{"BANK", []string{"HDFCBANK", "ICICIBANK", "SBIN", "KOTAKBANK"}},
		{" infy ", []string{"INFY"}},
		{"zomato", []string{}},
	}
	for _, tt := range tests {
		got := Search(qs, tt.q)
		if tt.want == nil {
			if len(got) != len(qs) {
				t.Errorf("Search(%q) returned %d quotes, want all %d", tt.q, len(got), len(qs))
			}
			continue
		}
		syms := make(map[string]bool, len(got))
		for _, q := range got {
			syms[q.Symbol] = true
		}
		if len(got) != len(tt.want) {
			t.Errorf("Search(%q) = %d quotes, want %v", tt.q, len(got), tt.want)
		}
		for _, s := range tt.want {
			if !syms[s] {
				t.Errorf("Search(%q) missing %s", tt.q, s)
			}
		}
	}
}

func TestStatic_MarkAtCost(t *testing.T) {
	p := NewStatic(nil)
	if got := p.Mark("TCS", d(123.45)); !got.Equal(d(123.45)) {
		t.Errorf("expected mark at cost, got %s", got)
	}
}

func TestSimulator_StartsAtBase(t *testing.T) {
	s := NewSimulator(0.002, 42)
	price, err := s.GetPrice(context.Background(), "TCS")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !price.Equal(d(3650)) {
		t.Errorf("expected base 3650, got %s", price)
	}
}

func TestSimulator_TickStaysBounded(t *testing.T) {
	s := NewSimulator(0.002, 7)
	for i := 0; i < 500; i++ {
		s.Tick()
	}
	quotes, _ := s.Quotes(context.Background())
	if len(quotes) != 15 {
		t.Fatalf("expected 15 quotes, got %d", len(quotes))
	}
	for _, q := range quotes {
		in, _ := Lookup(q.Symbol)
		lo := in.BasePrice.Mul(d(0.8))
		hi := in.BasePrice.Mul(d(1.2))
		if q.Price.LessThan(lo) || q.Price.GreaterThan(hi) {
			t.Errorf("%s drifted out of band: base=%s price=%s", q.Symbol, in.BasePrice, q.Price)
		}
		if q.Price.Exponent() < -2 {
			t.Errorf("%s price not rounded to 2dp: %s", q.Symbol, q.Price)
		}
	}
}

func TestSimulator_SameSeedSamePath(t *testing.T) {
	a := NewSimulator(0.002, 99)
	b := NewSimulator(0.002, 99)
	for i := 0; i < 10; i++ {
		qa, qb := a.Tick(), b.Tick()
		for j := range qa {
			if !qa[j].Price.Equal(qb[j].Price) {
				t.Fatalf("tick %d %s: %s != %s", i, qa[j].Symbol, qa[j].Price, qb[j].Price)
			}
		}
	}
}

func TestSimulator_MarkWithinDriftBand(t *testing.T) {
	s := NewSimulator(0.002, 3)
	avg := d(1000)
	for i := 0; i < 200; i++ {
		m := s.Mark("TCS", avg)
		if m.LessThan(d(980)) || m.GreaterThanOrEqual(d(1060)) {
			t.Fatalf("mark %s outside [980, 1060)", m)
		}
	}
}

func TestSimulator_RunStopsOnCancel(t *testing.T) {
	s := NewSimulator(0.002, 1)
	ctx, cancel := context.WithCancel(context.Background())

	ticks := make(chan int, 16)
	done := make(chan struct{})
	go func() {
		s.Run(ctx, 5*time.Millisecond, func(q []Quote) {
			select {
			case ticks <- len(q):
			default:
			}
		})
		close(done)
	}()

	select {
	case n := <-ticks:
		if n != 15 {
			t.Errorf("expected 15 quotes per tick, got %d", n)
		}
	case <-time.After(time.Second):
		t.Fatal("no tick within 1s")
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
