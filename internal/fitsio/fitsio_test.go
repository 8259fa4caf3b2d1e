package fitsio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"testing"
)

const fitsBlock = 2880

func card(key, value string) []byte {
	line := []byte(key + "        ")[:8]
	line = append(line, []byte("= "+value)...)
	for len(line) < 80 {
		line = append(line, ' ')
	}
	return line
}

func bareCard(key string) []byte {
	line := []byte(key)
	for len(line) < 80 {
		line = append(line, ' ')
	}
	return line
}

func headerBlock(cards ...[]byte) []byte {
	var out []byte
	for _, c := range cards {
		out = append(out, c...)
	}
	for len(out)%fitsBlock != 0 {
		out = append(out, ' ')
	}
	return out
}

func padBlock(data []byte) []byte {
	for len(data)%fitsBlock != 0 {
		data = append(data, 0)
	}
	return data
}

// scanArchive builds a minimal subscan FITS file: a bare primary header and
// one BINTABLE with time/ra/dec plus a 4-channel Ch0 spectrum per row.
func scanArchive(nrows int) []byte {
	primary := headerBlock(
		card("SIMPLE", "T"),
		card("BITPIX", "8"),
		card("NAXIS", "0"),
		card("SOURCE", "'W44'"),
		card("RECEIVER", "'KKG'"),
		card("BACKEND", "'SARDARA'"),
		card("SUBSCAN", "3"),
		bareCard("END"),
	)

	rowBytes := 8 + 8 + 8 + 4*4
	table := headerBlock(
		card("XTENSION", "'BINTABLE'"),
		card("BITPIX", "8"),
		card("NAXIS", "2"),
		card("NAXIS1", "40"),
		card("NAXIS2", itoa(nrows)),
		card("PCOUNT", "0"),
		card("GCOUNT", "1"),
		card("TFIELDS", "4"),
		card("TTYPE1", "'time'"),
		card("TFORM1", "'1D'"),
		card("TTYPE2", "'ra'"),
		card("TFORM2", "'1D'"),
		card("TTYPE3", "'dec'"),
		card("TFORM3", "'1D'"),
		card("TTYPE4", "'Ch0'"),
		card("TFORM4", "'4E'"),
		card("TFREQ4", "7000"),
		card("TBWID4", "512"),
		bareCard("END"),
	)

	var data bytes.Buffer
	for i := 0; i < nrows; i++ {
		binary.Write(&data, binary.BigEndian, 59123+float64(i)/86400)
		binary.Write(&data, binary.BigEndian, 0.001*float64(i))
		binary.Write(&data, binary.BigEndian, 0.5)
		for k := 0; k < 4; k++ {
			binary.Write(&data, binary.BigEndian, float32(i+k+1))
		}
	}
	if data.Len() != nrows*rowBytes {
		panic("row size mismatch")
	}

	var out []byte
	out = append(out, primary...)
	out = append(out, table...)
	out = append(out, padBlock(data.Bytes())...)
	return out
}

func itoa(n int) string {
	return string([]byte{byte('0' + n/10), byte('0' + n%10)})
}

func TestReadScan(t *testing.T) {
	s, err := Read(bytes.NewReader(scanArchive(12)))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	if s.Source != "W44" || s.Receiver != "KKG" || s.Backend != "SARDARA" {
		t.Errorf("metadata = %q/%q/%q", s.Source, s.Receiver, s.Backend)
	}
	if s.SubScanID != 3 {
		t.Errorf("SubScanID = %d, want 3", s.SubScanID)
	}
	if len(s.Times) != 12 {
		t.Fatalf("read %d samples, want 12", len(s.Times))
	}
	if err := s.CheckOrder(); err != nil {
		t.Errorf("times out of order after reading: %v", err)
	}
	if got := s.RA[5][0]; got != 0.001*5 {
		t.Errorf("RA[5][0] = %v, want %v", got, 0.001*5)
	}
	if got := s.Dec[5][0]; got != 0.5 {
		t.Errorf("Dec[5][0] = %v, want 0.5", got)
	}

	ch := s.Channel("Ch0")
	if ch == nil {
		t.Fatal("Ch0 column not found")
	}
	if ch.Frequency != 7000 || ch.Bandwidth != 512 {
		t.Errorf("Ch0 band = %v/%v MHz, want 7000/512", ch.Frequency, ch.Bandwidth)
	}
	if len(ch.Spectrum) != 12 || len(ch.Spectrum[0]) != 4 {
		t.Fatalf("Ch0 spectrum is %dx%d, want 12x4", len(ch.Spectrum), len(ch.Spectrum[0]))
	}
	want := []float64{3, 4, 5, 6}
	for k, w := range want {
		if math.Abs(ch.Spectrum[2][k]-w) > 1e-9 {
			t.Errorf("Spectrum[2][%d] = %v, want %v", k, ch.Spectrum[2][k], w)
		}
	}
}

func TestReadRejectsNonScan(t *testing.T) {
	primaryOnly := headerBlock(
		card("SIMPLE", "T"),
		card("BITPIX", "8"),
		card("NAXIS", "0"),
		bareCard("END"),
	)
	if _, err := Read(bytes.NewReader(primaryOnly)); !errors.Is(err, ErrNotScan) {
		t.Errorf("err = %v, want ErrNotScan", err)
	}
}

func TestReadScanMissingFile(t *testing.T) {
	if _, err := ReadScan("definitely/not/there.fits"); err == nil {
		t.Error("expected an error for a missing file")
	}
}
