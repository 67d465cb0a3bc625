package main

import (
	"strings"
	"testing"

	"radiowave/internal/auth"
)

func TestResolveToken(t *testing.T) {
	cases := []struct {
		name    string
		flag    string
		args    []string
		stdin   string
		want    string
		wantErr bool
	}{
		{name: "flag wins", flag: " secret ", args: []string{"other"}, stdin: "ignored", want: "secret"},
		{name: "positional argument", args: []string{"from-arg"}, stdin: "ignored", want: "from-arg"},
		{name: "stdin line", stdin: "from-stdin\n", want: "from-stdin"},
		{name: "empty everywhere", stdin: "\n", wantErr: true},
		{name: "no input", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := resolveToken(tc.flag, tc.args, strings.NewReader(tc.stdin))
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("resolveToken = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestResolvedTokenVerifies(t *testing.T) {
	token, err := resolveToken("control-secret", nil, strings.NewReader(""))
	if err != nil {
		t.Fatalf("resolveToken returned error: %v", err)
	}
	hash, err := auth.HashToken(token)
	if err != nil {
		t.Fatalf("HashToken returned error: %v", err)
	}
	if err := auth.VerifyToken(hash, "control-secret"); err != nil {
		t.Fatalf("VerifyToken returned error: %v", err)
	}
}
