package price

import (
	"encoding/json"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"
	dbm "github.com/cosmos/cosmos-db"
	"github.com/ethereum/go-ethereum/common"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/StrathCole/price-engine/pkg/adapter"
)

var (
	keyParams    = []byte("params")
	keyAssetList = []byte("assets")
	prefixAsset  = []byte("asset/")
)

func assetKey(addr common.Address) []byte {
	key := make([]byte, 0, len(prefixAsset)+common.AddressLength)
	key = append(key, prefixAsset...)
	return append(key, addr.Bytes()...)
}

type paramsRecord struct {
	Decimals             uint8  `msgpack:"decimals"`
	ObservationFrequency uint32 `msgpack:"observation_frequency"`
}

type componentRecord struct {
	Target   string `msgpack:"target"`
	Selector string `msgpack:"selector"`
	Params   []byte `msgpack:"params"`
}

// assetRecord is the persisted form of Asset. Integers wider than 64 bits are kept as
// decimal strings.
type assetRecord struct {
	Approved              bool              `msgpack:"approved"`
	StoreMovingAverage    bool              `msgpack:"store_ma"`
	UseMovingAverage      bool              `msgpack:"use_ma"`
	MovingAverageDuration uint32            `msgpack:"ma_duration"`
	NextObsIndex          uint16            `msgpack:"next_obs_index"`
	NumObservations       uint16            `msgpack:"num_observations"`
	LastObservationTime   uint64            `msgpack:"last_observation_time"`
	CumulativeObs         string            `msgpack:"cumulative_obs"`
	Observations          []string          `msgpack:"observations"`
	Strategy              *componentRecord  `msgpack:"strategy"`
	Feeds                 []componentRecord `msgpack:"feeds"`
}

func toComponentRecord(c Component) componentRecord {
	return componentRecord{Target: string(c.Target), Selector: c.Selector, Params: c.Params}
}

func (r componentRecord) component() Component {
	c := Component{Target: adapter.Keycode(r.Target), Selector: r.Selector}
	if len(r.Params) > 0 {
		c.Params = json.RawMessage(r.Params)
	}
	return c
}

func toAssetRecord(a *Asset) assetRecord {
	r := assetRecord{
		Approved:              a.Approved,
		StoreMovingAverage:    a.StoreMovingAverage,
		UseMovingAverage:      a.UseMovingAverage,
		MovingAverageDuration: a.MovingAverageDuration,
		NextObsIndex:          a.NextObsIndex,
		NumObservations:       a.NumObservations,
		LastObservationTime:   a.LastObservationTime,
		CumulativeObs:         a.CumulativeObs.String(),
		Observations:          make([]string, len(a.Observations)),
		Feeds:                 make([]componentRecord, len(a.Feeds)),
	}
	for i, o := range a.Observations {
		r.Observations[i] = o.String()
	}
	for i, f := range a.Feeds {
		r.Feeds[i] = toComponentRecord(f)
	}
	if a.Strategy != nil {
		s := toComponentRecord(*a.Strategy)
		r.Strategy = &s
	}
	return r
}

func (r assetRecord) asset() (*Asset, error) {
	a := &Asset{
		Approved:              r.Approved,
		StoreMovingAverage:    r.StoreMovingAverage,
		UseMovingAverage:      r.UseMovingAverage,
		MovingAverageDuration: r.MovingAverageDuration,
		NextObsIndex:          r.NextObsIndex,
		NumObservations:       r.NumObservations,
		LastObservationTime:   r.LastObservationTime,
		Observations:          make([]math.Uint, len(r.Observations)),
		Feeds:                 make([]Component, len(r.Feeds)),
	}

	if r.NumObservations == 0 || len(r.Observations) != int(r.NumObservations) || r.NextObsIndex >= r.NumObservations {
		return nil, ErrStateCorrupted.Wrapf("observation buffer: %d slots, %d observations, next %d", r.NumObservations, len(r.Observations), r.NextObsIndex)
	}

	var err error
	if a.CumulativeObs, err = math.ParseUint(r.CumulativeObs); err != nil {
		return nil, errorsmod.Wrapf(ErrStateCorrupted, "cumulative observation: %v", err)
	}
	for i, o := range r.Observations {
		if a.Observations[i], err = math.ParseUint(o); err != nil {
			return nil, errorsmod.Wrapf(ErrStateCorrupted, "observation %d: %v", i, err)
		}
	}
	for i, f := range r.Feeds {
		a.Feeds[i] = f.component()
	}
	if r.Strategy != nil {
		s := r.Strategy.component()
		a.Strategy = &s
	}
	return a, nil
}

// Store persists engine state in a key-value database.
type Store struct {
	db dbm.DB
}

// NewStore wraps db.
func NewStore(db dbm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) get(key []byte, v interface{}) (bool, error) {
	bz, err := s.db.Get(key)
	if err != nil {
		return false, errorsmod.Wrapf(ErrStore, "get %q: %v", key, err)
	}
	if bz == nil {
		return false, nil
	}
	if err := msgpack.Unmarshal(bz, v); err != nil {
		return false, errorsmod.Wrapf(ErrStateCorrupted, "decode %q: %v", key, err)
	}
	return true, nil
}

// Params returns the engine parameters the store was created with.
func (s *Store) Params() (decimals uint8, frequency uint32, found bool, err error) {
	var p paramsRecord
	found, err = s.get(keyParams, &p)
	return p.Decimals, p.ObservationFrequency, found, err
}

// Asset loads the state of addr, or nil when nothing is stored for it.
func (s *Store) Asset(addr common.Address) (*Asset, error) {
	var r assetRecord
	found, err := s.get(assetKey(addr), &r)
	if err != nil || !found {
		return nil, err
	}
	return r.asset()
}

// AssetList returns the approved assets in list order.
func (s *Store) AssetList() ([]common.Address, error) {
	var raw [][]byte
	if _, err := s.get(keyAssetList, &raw); err != nil {
		return nil, err
	}
	out := make([]common.Address, len(raw))
	for i, b := range raw {
		out[i] = common.BytesToAddress(b)
	}
	return out, nil
}

// Writer stages changes that are committed together.
type Writer struct {
	store  *Store
	writes []write
}

type write struct {
	key    []byte
	value  []byte
	delete bool
}

// Writer starts a set of staged changes.
func (s *Store) Writer() *Writer {
	return &Writer{store: s}
}

func (w *Writer) set(key []byte, v interface{}) error {
	bz, err := msgpack.Marshal(v)
	if err != nil {
		return errorsmod.Wrapf(ErrStore, "encode %q: %v", key, err)
	}
	w.writes = append(w.writes, write{key: key, value: bz})
	return nil
}

// SetParams stages the engine parameters.
func (w *Writer) SetParams(decimals uint8, frequency uint32) error {
	return w.set(keyParams, paramsRecord{Decimals: decimals, ObservationFrequency: frequency})
}

// SetAsset stages the state of addr.
func (w *Writer) SetAsset(addr common.Address, a *Asset) error {
	return w.set(assetKey(addr), toAssetRecord(a))
}

// DeleteAsset stages the removal of addr's state.
func (w *Writer) DeleteAsset(addr common.Address) {
	w.writes = append(w.writes, write{key: assetKey(addr), delete: true})
}

// SetAssetList stages the approved asset list.
func (w *Writer) SetAssetList(list []common.Address) error {
	raw := make([][]byte, len(list))
	for i, a := range list {
		raw[i] = a.Bytes()
	}
	return w.set(keyAssetList, raw)
}

// Commit writes every staged change in one batch. Nothing is written on error.
func (w *Writer) Commit() (err error) {
	if len(w.writes) == 0 {
		return nil
	}

	batch := w.store.db.NewBatch()
	defer func() {
		if cerr := batch.Close(); cerr != nil && err == nil {
			err = errorsmod.Wrapf(ErrStore, "close batch: %v", cerr)
		}
	}()

	for _, wr := range w.writes {
		if wr.delete {
			err = batch.Delete(wr.key)
		} else {
			err = batch.Set(wr.key, wr.value)
		}
		if err != nil {
			return errorsmod.Wrapf(ErrStore, "stage %q: %v", wr.key, err)
		}
	}
	if err := batch.WriteSync(); err != nil {
		return errorsmod.Wrapf(ErrStore, "write batch: %v", err)
	}
	w.writes = nil
	return nil
}
