package eventlog

import "testing"

func TestDecodePayload(t *testing.T) {
	testCases := []struct {
		name      string
		raw       []byte
		wantOp    Op
		wantValue string
		expectErr bool
	}{
		{name: "put", raw: append([]byte{byte(OpPut)}, []byte("v1")...), wantOp: OpPut, wantValue: "v1"},
		{name: "delete", raw: []byte{byte(OpDelete)}, wantOp: OpDelete, wantValue: ""},
		{name: "merge", raw: append([]byte{byte(OpMerge)}, []byte("v2")...), wantOp: OpMerge, wantValue: "v2"},
		{name: "empty", raw: []byte{}, expectErr: true},
		{name: "unknown op code", raw: []byte{99, 'x'}, expectErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := decodePayload(tc.raw)
			if tc.expectErr {
				if err == nil {
					t.Fatalf("decodePayload(%v): expected error, got nil", tc.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("decodePayload(%v): unexpected error: %v", tc.raw, err)
			}
			if p.Op != tc.wantOp {
				t.Errorf("Op = %v, want %v", p.Op, tc.wantOp)
			}
			if string(p.Value) != tc.wantValue {
				t.Errorf("Value = %q, want %q", p.Value, tc.wantValue)
			}
		})
	}
}
