package pdphy

import "testing"

func TestTransmitTypeIsReset(t *testing.T) {
	for typ := TxSOP; typ <= TxBISTMode2; typ++ {
		want := typ == TxHardReset || typ == TxCableReset
		if typ.IsReset() != want {
			t.Errorf("%v.IsReset() = %v, want %v", typ, typ.IsReset(), want)
		}
	}
}

func TestStringers(t *testing.T) {
	if got := TxCableReset.String(); got != "cable-reset" {
		t.Errorf("TxCableReset = %q", got)
	}
	if got := TransmitType(200).String(); got != "INVALID" {
		t.Errorf("TransmitType(200) = %q", got)
	}
	if got := TxStatusDiscarded.String(); got != "discarded" {
		t.Errorf("TxStatusDiscarded = %q", got)
	}
}
