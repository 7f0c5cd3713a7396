package discovery

import (
	"errors"
	"strings"
	"testing"
)

func TestEncodeDecodeNodeTXT(t *testing.T) {
	txt := EncodeNodeTXT(&NodeInfo{InstanceName: "mix-1", NodeID: "n1", Port: 1789})

	if txt[TXTKeyVersion] != ProtocolVersion {
		t.Errorf("version: expected %q, got %q", ProtocolVersion, txt[TXTKeyVersion])
	}

	version, nodeID, err := DecodeNodeTXT(txt)
	if err != nil {
		t.Fatalf("DecodeNodeTXT failed: %v", err)
	}
	if version != ProtocolVersion || nodeID != "n1" {
		t.Errorf("expected (%q, %q), got (%q, %q)", ProtocolVersion, "n1", version, nodeID)
	}
}

func TestEncodeNodeTXTOmitsEmptyID(t *testing.T) {
	txt := EncodeNodeTXT(&NodeInfo{InstanceName: "mix-1"})
	if _, ok := txt[TXTKeyNodeID]; ok {
		t.Error("expected no id record")
	}
}

func TestDecodeNodeTXTErrors(t *testing.T) {
	tests := []struct {
		name string
		txt  TXTRecordMap
		want error
	}{
		{"missing version", TXTRecordMap{TXTKeyNodeID: "n1"}, ErrMissingRequired},
		{"unsupported version", TXTRecordMap{TXTKeyVersion: "2"}, ErrUnsupportedVersion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := DecodeNodeTXT(tt.txt)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestTXTRecordStrings(t *testing.T) {
	strs := TXTRecordsToStrings(TXTRecordMap{"v": "1", "id": "abc"})
	if len(strs) != 2 || strs[0] != "id=abc" || strs[1] != "v=1" {
		t.Errorf("expected sorted [id=abc v=1], got %v", strs)
	}

	txt := StringsToTXTRecords([]string{"v=1", "flag", "=skip", "kv=a=b"})
	if txt["v"] != "1" {
		t.Errorf("v: got %q", txt["v"])
	}
	if v, ok := txt["flag"]; !ok || v != "" {
		t.Errorf("flag: expected empty value, got %q (present=%v)", v, ok)
	}
	if txt["kv"] != "a=b" {
		t.Errorf("kv: expected value split at first '=', got %q", txt["kv"])
	}
	if _, ok := txt[""]; ok {
		t.Error("expected empty key to be skipped")
	}
}

func TestValidateInstanceName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"normal", "mix-node-1", false},
		{"max length", strings.Repeat("a", MaxInstanceNameLen), false},
		{"too long", strings.Repeat("a", MaxInstanceNameLen+1), true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateInstanceName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateInstanceName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}
