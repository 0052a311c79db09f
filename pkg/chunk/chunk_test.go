package chunk

import "testing"

func TestSilence(t *testing.T) {
	f := Format{SampleRate: 16000, SampleWidth: 2, SampleChannels: 1}
	c := Silence(f, 320)
	if len(c.Data) != 320 {
		t.Fatalf("expected 320 bytes of silence, got %d", len(c.Data))
	}
	for _, b := range c.Data {
		if b != 0 {
			t.Fatalf("silence chunk must be all zero bytes")
		}
	}
}

func TestSecondsPerChunk(t *testing.T) {
	f := Format{SampleRate: 16000, SampleWidth: 2, SampleChannels: 1}
	got := f.SecondsPerChunk(3200)
	if got != 0.1 {
		t.Fatalf("expected 0.1s per chunk, got %v", got)
	}
}

func TestRMSOfSilenceIsZero(t *testing.T) {
	if rms := RMS(make([]byte, 640)); rms != 0 {
		t.Fatalf("expected 0 RMS for silence, got %v", rms)
	}
}

func TestDebiasedEnergyNonNegative(t *testing.T) {
	data := make([]byte, 640)
	for i := 0; i+1 < len(data); i += 2 {
		data[i] = 0xFF
		data[i+1] = 0x0F
	}
	e := DebiasedEnergy(data, 2)
	if e < 0 {
		t.Fatalf("debiased energy must not be negative, got %v", e)
	}
}
