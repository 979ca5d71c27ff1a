package audio_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/zkmkarlsruhe/LanguageIdentifier/pkg/audio"
)

// samplesToBytes converts a slice of int16 samples to little-endian byte representation.
func samplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

func TestPCM16ToFloat32(t *testing.T) {
	got := audio.PCM16ToFloat32(samplesToBytes([]int16{0, 16384, -32768}))
	want := []float32{0, 0.5, -1}
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestPCM16ToFloat32_OddByteIgnored(t *testing.T) {
	got := audio.PCM16ToFloat32([]byte{0x00, 0x40, 0x7f})
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
}

func TestFloat32ToPCM16_Clamping(t *testing.T) {
	pcm := audio.Float32ToPCM16([]float32{2, -2, 0})
	var got [3]int16
	if err := binary.Read(bytes.NewReader(pcm), binary.LittleEndian, &got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got[0] != 32767 || got[1] != -32768 || got[2] != 0 {
		t.Errorf("got %v, want [32767 -32768 0]", got)
	}
}

func TestSelectChannel(t *testing.T) {
	interleaved := []float32{1, -1, 2, -2, 3, -3}

	tests := []struct {
		name     string
		channels int
		channel  int
		want     audio.Frame
		wantErr  bool
	}{
		{name: "left", channels: 2, channel: 0, want: audio.Frame{1, 2, 3}},
		{name: "right", channels: 2, channel: 1, want: audio.Frame{-1, -2, -3}},
		{name: "mono passthrough", channels: 1, channel: 0, want: audio.Frame{1, -1, 2, -2, 3, -3}},
		{name: "out of range", channels: 2, channel: 2, wantErr: true},
		{name: "negative", channels: 2, channel: -1, wantErr: true},
		{name: "no channels", channels: 0, channel: 0, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := audio.SelectChannel(interleaved, tc.channels, tc.channel)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tc.want) {
				t.Fatalf("len = %d, want %d", len(got), len(tc.want))
			}
			for i := range tc.want {
				if got[i] != tc.want[i] {
					t.Errorf("sample %d: got %v, want %v", i, got[i], tc.want[i])
				}
			}
		})
	}
}

func TestSelectChannel_MonoDoesNotAlias(t *testing.T) {
	in := []float32{0.5}
	got, err := audio.SelectChannel(in, 1, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got[0] = 0
	if in[0] != 0.5 {
		t.Fatal("SelectChannel returned a frame sharing the input's storage")
	}
}

func TestWriteWAV_Header(t *testing.T) {
	var buf bytes.Buffer
	if err := audio.WriteWAV(&buf, []float32{0, 0.5, -0.5}, 16000); err != nil {
		t.Fatalf("WriteWAV: %v", err)
	}
	b := buf.Bytes()
	if len(b) != 44+6 {
		t.Fatalf("len = %d, want %d", len(b), 50)
	}
	if string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" || string(b[36:40]) != "data" {
		t.Errorf("unexpected header markers: %q %q %q", b[0:4], b[8:12], b[36:40])
	}
	if rate := binary.LittleEndian.Uint32(b[24:28]); rate != 16000 {
		t.Errorf("sample rate = %d, want 16000", rate)
	}
	if size := binary.LittleEndian.Uint32(b[40:44]); size != 6 {
		t.Errorf("data size = %d, want 6", size)
	}
}
