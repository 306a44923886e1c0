package market

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	xerrors "EcoBot-Chain/internal/errors"
	"EcoBot-Chain/internal/web3/contracts"
)

func TestRescaleRoundTrip(t *testing.T) {
	cases := []struct {
		name  string
		value int64
		from  uint8
		via   uint8
	}{
		{name: "oracle through ledger", value: 200012345678, from: OracleScale, via: LedgerScale},
		{name: "ledger through oracle", value: 1_900_000_000_000_000_000, from: LedgerScale, via: OracleScale},
		{name: "same scale", value: 42, from: 8, via: 8},
		{name: "zero", value: 0, from: 18, via: 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			start := NewPrice(big.NewInt(tc.value), tc.from)
			back := start.Rescale(tc.via).Rescale(tc.from)

			// Exact when going up, otherwise equal within the smaller scale.
			smaller := tc.from
			if tc.via < smaller {
				smaller = tc.via
			}
			if start.Rescale(smaller).Cmp(back.Rescale(smaller)) != 0 {
				t.Fatalf("round trip drifted: %s -> %s", start.Value, back.Value)
			}
			if tc.via >= tc.from && back.Value.Cmp(start.Value) != 0 {
				t.Fatalf("expected exact round trip, got %s", back.Value)
			}
		})
	}
}

func TestCmpNormalizesScales(t *testing.T) {
	oracle := NewPrice(big.NewInt(2000_00000000), OracleScale)
	pool, _ := new(big.Int).SetString("1900000000000000000000", 10)
	poolPrice := NewPrice(pool, LedgerScale)

	if poolPrice.Cmp(oracle) >= 0 {
		t.Fatalf("expected pool %s below oracle %s", poolPrice, oracle)
	}
	same := NewPrice(new(big.Int).Mul(big.NewInt(2000), pow10(LedgerScale)), LedgerScale)
	if same.Cmp(oracle) != 0 {
		t.Fatalf("expected equal prices across scales")
	}
	if oracle.String() != "2000.00" {
		t.Fatalf("unexpected rendering %q", oracle.String())
	}
}

func TestQuoteConvertsVolatileAmount(t *testing.T) {
	price := NewPrice(new(big.Int).Mul(big.NewInt(1900), pow10(LedgerScale)), LedgerScale)
	tenth := new(big.Int).Div(pow10(LedgerScale), big.NewInt(10))

	got := price.Quote(tenth)
	want := new(big.Int).Mul(big.NewInt(190), pow10(LedgerScale))
	if got.Cmp(want) != 0 {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestReferencePriceParsesTicker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"symbol":"ETHUSDT","price":"2012.34567891"}`))
	}))
	defer server.Close()

	reader := NewReader(ReaderConfig{FeedURL: server.URL, Timeout: time.Second}, nil, nil)
	price, err := reader.ReferencePrice(context.Background())
	if err != nil {
		t.Fatalf("reference price: %v", err)
	}
	if price.Scale != OracleScale || price.Value.Int64() != 201234567891 {
		t.Fatalf("unexpected price %+v", price)
	}
}

func TestReferencePriceFailures(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"status": func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "busy", http.StatusTooManyRequests)
		},
		"body": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`not json`))
		},
		"price": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"price":"abc"}`))
		},
		"zero": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"price":"0"}`))
		},
	}
	for name, handler := range cases {
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(handler)
			defer server.Close()

			reader := NewReader(ReaderConfig{FeedURL: server.URL, Timeout: time.Second}, nil, nil)
			_, err := reader.ReferencePrice(context.Background())
			if !xerrors.HasCode(err, xerrors.CodeFeedUnavailable) {
				t.Fatalf("expected FEED_UNAVAILABLE, got %v", err)
			}
		})
	}

	reader := NewReader(ReaderConfig{FeedURL: "http://127.0.0.1:1", Timeout: 200 * time.Millisecond}, nil, nil)
	if _, err := reader.ReferencePrice(context.Background()); !xerrors.HasCode(err, xerrors.CodeFeedUnavailable) {
		t.Fatalf("expected FEED_UNAVAILABLE for unreachable feed, got %v", err)
	}
}

type stubOracle struct {
	answer *big.Int
	err    error
}

func (s stubOracle) LatestAnswer(context.Context) (*big.Int, error) { return s.answer, s.err }

type stubPools map[string]*big.Int

func (s stubPools) PoolPrice(_ context.Context, pool contracts.Pool) (*big.Int, error) {
	price, ok := s[pool.Name]
	if !ok {
		return nil, errors.New("unknown pool")
	}
	return price, nil
}

func TestOnChainReadsCarryScale(t *testing.T) {
	pools := stubPools{contracts.PoolDUSD.Name: new(big.Int).Mul(big.NewInt(1900), pow10(LedgerScale))}
	reader := NewReader(ReaderConfig{}, stubOracle{answer: big.NewInt(2000_00000000)}, pools)

	oracle, err := reader.OraclePrice(context.Background())
	if err != nil || oracle.Scale != OracleScale {
		t.Fatalf("oracle read: %+v %v", oracle, err)
	}
	pool, err := reader.PoolPrice(context.Background(), contracts.PoolDUSD)
	if err != nil || pool.Scale != LedgerScale {
		t.Fatalf("pool read: %+v %v", pool, err)
	}
	if pool.Cmp(oracle) >= 0 {
		t.Fatalf("expected pool below oracle")
	}

	if _, err := NewReader(ReaderConfig{}, nil, nil).OraclePrice(context.Background()); !xerrors.HasCode(err, xerrors.CodeConfigurationMissing) {
		t.Fatalf("expected configuration error without oracle, got %v", err)
	}
}
