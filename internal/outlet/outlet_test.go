package outlet

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDriver scripts per-call outcomes for retry tests.
type fakeDriver struct {
	readErrs  []error
	readWatts float64
	setErrs   []error

	reads  int
	writes int
}

func (f *fakeDriver) ReadPower(ctx context.Context, name string) (float64, error) {
	f.reads++
	if len(f.readErrs) > 0 {
		err := f.readErrs[0]
		f.readErrs = f.readErrs[1:]
		if err != nil {
			return 0, err
		}
	}
	return f.readWatts, nil
}

func (f *fakeDriver) SetPower(ctx context.Context, name string, on bool) error {
	f.writes++
	if len(f.setErrs) > 0 {
		err := f.setErrs[0]
		f.setErrs = f.setErrs[1:]
		return err
	}
	return nil
}

func TestObfuscateRoundtrip(t *testing.T) {
	for _, msg := range []string{
		`{"system":{"get_sysinfo":{}}}`,
		`{"emeter":{"get_realtime":{}}}`,
		"",
		"a",
	} {
		t.Run(msg, func(t *testing.T) {
			assert.Equal(t, []byte(msg), deobfuscate(obfuscate([]byte(msg))))
		})
	}
}

func TestObfuscateKnownPrefix(t *testing.T) {
	// First cipher byte is always the plaintext byte XOR 171.
	out := obfuscate([]byte(`{"x":1}`))
	assert.Equal(t, byte('{')^171, out[0])
}

func TestRetrierRecoversWithinLimit(t *testing.T) {
	boom := errors.New("connection refused")
	fake := &fakeDriver{readErrs: []error{boom, boom, nil}, readWatts: 42}
	r := NewRetrier(fake, 3, time.Millisecond)

	watts, err := r.ReadPower(context.Background(), "battery_rad")
	require.NoError(t, err)
	assert.Equal(t, 42.0, watts)
	assert.Equal(t, 3, fake.reads)
}

func TestRetrierExhaustion(t *testing.T) {
	boom := errors.New("connection refused")
	fake := &fakeDriver{readErrs: []error{boom, boom, boom, boom}}
	r := NewRetrier(fake, 3, time.Millisecond)

	_, err := r.ReadPower(context.Background(), "battery_rad")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 4, fake.reads) // initial attempt plus three retries
}

func TestRetrierHonorsCancellation(t *testing.T) {
	boom := errors.New("timeout")
	fake := &fakeDriver{setErrs: []error{boom, boom, boom, boom}}
	r := NewRetrier(fake, 3, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := r.SetPower(ctx, "battery_rad", false)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, fake.writes)
}

func TestSimulatedSuppressesWrites(t *testing.T) {
	fake := &fakeDriver{readWatts: 88}
	sim := NewSimulated(fake)

	watts, err := sim.ReadPower(context.Background(), "battery_rad")
	require.NoError(t, err)
	assert.Equal(t, 88.0, watts)

	require.NoError(t, sim.SetPower(context.Background(), "battery_rad", false))
	require.NoError(t, sim.SetPower(context.Background(), "battery_lectric", true))
	assert.Zero(t, fake.writes)

	writes := sim.IntendedWrites()
	require.Len(t, writes, 2)
	assert.Equal(t, "battery_rad", writes[0].Outlet)
	assert.False(t, writes[0].On)
	assert.Equal(t, "battery_lectric", writes[1].Outlet)
	assert.True(t, writes[1].On)
}

func TestKasaUnknownOutlet(t *testing.T) {
	k := NewKasa(time.Second)
	_, err := k.ReadPower(context.Background(), "battery_ghost")
	assert.Error(t, err)
}

func TestKasaRegisterAndList(t *testing.T) {
	k := NewKasa(time.Second)
	k.Register(Meta{Name: "battery_rad", Addr: "192.168.1.40"})
	k.Register(Meta{Name: "battery_strip_1", Addr: "192.168.1.41", ChildID: "8006...01"})

	outlets := k.Outlets()
	assert.Len(t, outlets, 2)
}

func TestWithChildContext(t *testing.T) {
	cmd := map[string]any{"system": map[string]any{}}

	plain := withChildContext(Meta{Name: "battery_rad"}, cmd)
	_, hasCtx := plain["context"]
	assert.False(t, hasCtx)

	child := withChildContext(Meta{Name: "battery_strip_1", ChildID: "abc01"}, map[string]any{"system": map[string]any{}})
	ctx, ok := child["context"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []string{"abc01"}, ctx["child_ids"])
}
