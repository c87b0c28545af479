package fixed

import (
	"context"
	"testing"

	"cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StrathCole/price-engine/pkg/adapter"
)

func TestFixedFeed_Price(t *testing.T) {
	sub, err := adapter.Create(Keycode, nil)
	require.NoError(t, err)
	feed := sub.(adapter.Feed)

	tests := []struct {
		name     string
		selector string
		params   string
		want     math.Uint
		wantErr  error
	}{
		{name: "configured price", selector: SelectorGetPrice, params: `{"price":"1000000000000000000"}`, want: math.NewUint(1_000_000_000_000_000_000)},
		{name: "zero price passes through", selector: SelectorGetPrice, params: `{"price":"0"}`, want: math.ZeroUint()},
		{name: "missing price", selector: SelectorGetPrice, params: `{}`, wantErr: ErrPriceRequired},
		{name: "not a number", selector: SelectorGetPrice, params: `{"price":"abc"}`, wantErr: adapter.ErrInvalidParams},
		{name: "unknown field", selector: SelectorGetPrice, params: `{"value":"1"}`, wantErr: adapter.ErrInvalidParams},
		{name: "unknown selector", selector: "getTwap", params: `{"price":"1"}`, wantErr: adapter.ErrUnknownSelector},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := feed.Price(context.Background(), tt.selector, adapter.FeedRequest{OutputDecimals: 18, Params: []byte(tt.params)})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Equal(tt.want), "got %s", got)
		})
	}
}
