package secret

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type stubProvider struct {
	name   string
	values map[string]string
	err    error
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Resolve(_ context.Context, ref string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.values[ref], nil
}

func (s *stubProvider) Close() error { return nil }

func TestExpandEnvStrict(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "gsk_test")

	out, err := ExpandEnvStrict("Bearer ${GROQ_API_KEY}")
	if err != nil || out != "Bearer gsk_test" {
		t.Errorf("ExpandEnvStrict() = %q, %v", out, err)
	}

	out, err = ExpandEnvStrict("$$${GROQ_API_KEY}")
	if err != nil || out != "$gsk_test" {
		t.Errorf("escape: ExpandEnvStrict() = %q, %v", out, err)
	}

	_, err = ExpandEnvStrict("${ZZ_MISSING_B} ${ZZ_MISSING_A} ${ZZ_MISSING_A}")
	if !errors.Is(err, ErrMissingEnv) {
		t.Fatalf("err = %v, want ErrMissingEnv", err)
	}
	if !strings.HasSuffix(err.Error(), "ZZ_MISSING_A, ZZ_MISSING_B") {
		t.Errorf("err = %q, want sorted unique names", err)
	}
}

func TestParseSecretRef(t *testing.T) {
	tests := []struct {
		in       string
		provider string
		ref      string
		ok       bool
	}{
		{"secretref:env:GROQ_API_KEY", "env", "GROQ_API_KEY", true},
		{"secretref:file:keys/groq:v2", "file", "keys/groq:v2", true},
		{"secretref:env:", "", "", false},
		{"secretref::x", "", "", false},
		{"gsk_plain", "", "", false},
	}
	for _, tt := range tests {
		p, r, ok := ParseSecretRef(tt.in)
		if p != tt.provider || r != tt.ref || ok != tt.ok {
			t.Errorf("ParseSecretRef(%q) = %q, %q, %v", tt.in, p, r, ok)
		}
	}
}

func TestResolver_ResolveValue(t *testing.T) {
	t.Setenv("CHROMA_TOKEN", "tok")
	r := NewResolver(true, EnvProvider{}, &stubProvider{name: "vault", values: map[string]string{"groq": "gsk_v"}})
	ctx := context.Background()

	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"secretref:env:CHROMA_TOKEN", "tok"},
		{"secretref:vault:groq", "gsk_v"},
		{"Bearer secretref:vault:groq", "Bearer gsk_v"},
		{"${CHROMA_TOKEN}-secretref:env:CHROMA_TOKEN", "tok-tok"},
	}
	for _, tt := range tests {
		got, err := r.ResolveValue(ctx, tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ResolveValue(%q) = %q, %v, want %q", tt.in, got, err, tt.want)
		}
	}
}

func TestResolver_Errors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("backend down")
	r := NewResolver(true, &stubProvider{name: "empty", values: map[string]string{}}, &stubProvider{name: "broken", err: boom})

	if _, err := r.ResolveValue(ctx, "secretref:nope:x"); !errors.Is(err, ErrProviderNotRegistered) {
		t.Errorf("unknown provider err = %v", err)
	}
	if _, err := r.ResolveValue(ctx, "secretref:empty:x"); !errors.Is(err, ErrEmptySecret) {
		t.Errorf("strict empty err = %v", err)
	}
	if _, err := r.ResolveValue(ctx, "Bearer secretref:broken:x"); !errors.Is(err, boom) {
		t.Errorf("inline provider err = %v", err)
	}

	lenient := NewResolver(false, &stubProvider{name: "empty", values: map[string]string{}})
	if v, err := lenient.ResolveValue(ctx, "secretref:empty:x"); err != nil || v != "" {
		t.Errorf("lenient = %q, %v", v, err)
	}
}

func TestResolver_ResolveInPlace(t *testing.T) {
	t.Setenv("K1", "one")
	r := NewResolver(true, EnvProvider{})
	a, b, empty := "${K1}", "secretref:env:K1", ""
	if err := r.ResolveInPlace(context.Background(), &a, &b, &empty, nil); err != nil {
		t.Fatalf("ResolveInPlace() error = %v", err)
	}
	if a != "one" || b != "one" || empty != "" {
		t.Errorf("got %q %q %q", a, b, empty)
	}
	bad := "secretref:env:ZZ_NOT_SET_ANYWHERE"
	if err := r.ResolveInPlace(context.Background(), &bad); !errors.Is(err, ErrMissingEnv) {
		t.Errorf("err = %v, want ErrMissingEnv", err)
	}
}

func TestFileProvider(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "groq"), []byte("gsk_file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	p := FileProvider{Dir: dir}
	v, err := p.Resolve(context.Background(), "groq")
	if err != nil || v != "gsk_file" {
		t.Errorf("Resolve() = %q, %v", v, err)
	}
	if _, err := p.Resolve(context.Background(), "../../etc/passwd"); err == nil {
		t.Error("path escaping Dir must not resolve")
	}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	factory := func(map[string]any) (Provider, error) { return &stubProvider{name: "stub"}, nil }
	if err := reg.Register("stub", factory); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := reg.Register("stub", factory); err == nil {
		t.Error("duplicate registration must fail")
	}
	if err := reg.Register(" ", factory); err == nil {
		t.Error("blank name must fail")
	}
	if _, err := reg.Create("missing", nil); !errors.Is(err, ErrProviderNotRegistered) {
		t.Errorf("err = %v", err)
	}
	if names := reg.List(); len(names) != 1 || names[0] != "stub" {
		t.Errorf("List() = %v", names)
	}
}

func TestDefaultRegistry_NewResolverFromConfig(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "key"), []byte("from-file"), 0o600); err != nil {
		t.Fatal(err)
	}
	r, err := DefaultRegistry.NewResolverFromConfig(true, map[string]map[string]any{"file": {"dir": dir}})
	if err != nil {
		t.Fatalf("NewResolverFromConfig() error = %v", err)
	}
	defer r.Close()

	v, err := r.ResolveValue(context.Background(), "secretref:file:key")
	if err != nil || v != "from-file" {
		t.Errorf("ResolveValue() = %q, %v", v, err)
	}

	if _, err := DefaultRegistry.NewResolverFromConfig(true, map[string]map[string]any{"bws": nil}); !errors.Is(err, ErrProviderNotRegistered) {
		t.Errorf("err = %v, want ErrProviderNotRegistered", err)
	}
}
