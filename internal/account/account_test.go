package account

import "testing"

func TestState_MarshalUnmarshalRoundTrip(t *testing.T) {
	var id ID
	id[19] = 7
	s := &State{ID: id, Balance: 12345, Seq: 9}

	out, err := ParseState(id, s.MarshalBinary())
	if err != nil {
		t.Fatalf("ParseState() error = %v", err)
	}
	if out.ID != s.ID || out.Balance != s.Balance || out.Seq != s.Seq {
		t.Fatalf("ParseState() = %+v, want %+v", out, s)
	}
}

func TestParseStateRejectsTruncatedData(t *testing.T) {
	var id ID
	if _, err := ParseState(id, []byte{1, 2, 3}); err == nil {
		t.Fatalf("ParseState() with truncated data: want error, got nil")
	}
}

func TestCreditPanicsOnOverflow(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("Credit() at max balance: want panic, got none")
		}
	}()
	s := &State{Balance: ^uint64(0)}
	s.Credit(1)
}

func TestDecSeqPanicsOnUnderflow(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("DecSeq() at seq 0: want panic, got none")
		}
	}()
	s := &State{}
	s.DecSeq()
}
