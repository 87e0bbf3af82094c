package models

import "testing"

func TestValidMACAddress(t *testing.T) {
	valid := []string{"00:11:22:33:44:55", "AA-BB-CC-DD-EE-FF", " a0:b1:c2:d3:e4:f5 "}
	for _, s := range valid {
		if !ValidMACAddress(s) {
			t.Fatalf("expected %q to be a valid MAC", s)
		}
	}
	invalid := []string{"", "00:11:22:33:44", "00:11:22:33:44:GG", "001122334455"}
	for _, s := range invalid {
		if ValidMACAddress(s) {
			t.Fatalf("expected %q to be rejected", s)
		}
	}
}

func TestValidUsername(t *testing.T) {
	if !ValidUsername("alice_01") {
		t.Fatal("expected alice_01 to be valid")
	}
	if ValidUsername("ab") {
		t.Fatal("expected too-short username to be rejected")
	}
	if ValidUsername("has space") {
		t.Fatal("expected username with space to be rejected")
	}
}

func TestValidHostname(t *testing.T) {
	if !ValidHostname("gandalf.lan") {
		t.Fatal("expected gandalf.lan to be valid")
	}
	if ValidHostname("") {
		t.Fatal("expected empty hostname to be rejected")
	}
	if ValidHostname("-leading.dash") {
		t.Fatal("expected leading dash to be rejected")
	}
}
