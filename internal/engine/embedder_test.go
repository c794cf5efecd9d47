package engine

import (
	"context"
	"math"
	"reflect"
	"testing"

	"github.com/mnemon-ai/mnemon/internal/config"
)

func TestHashEmbedderDeterministic(t *testing.T) {
	emb := NewHashEmbedder(64)
	ctx := context.Background()

	a, err := emb.Embed(ctx, "the quick brown fox")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	b, err := emb.Embed(ctx, "the quick brown fox")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Error("same text produced different vectors")
	}
	if len(a) != 64 {
		t.Errorf("dims = %d, want 64", len(a))
	}
	if emb.Dimensions() != 64 {
		t.Errorf("Dimensions() = %d, want 64", emb.Dimensions())
	}
}

func TestHashEmbedderNormalized(t *testing.T) {
	emb := NewHashEmbedder(128)
	vec, err := emb.Embed(context.Background(), "normalize this vector please")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	if math.Abs(norm-1.0) > 1e-5 {
		t.Errorf("norm = %v, want 1.0", norm)
	}
}

func TestHashEmbedderSharedVocabulary(t *testing.T) {
	emb := NewHashEmbedder(256)
	ctx := context.Background()

	base, _ := emb.Embed(ctx, "database query optimization planner index")
	near, _ := emb.Embed(ctx, "database index optimization strategy")
	far, _ := emb.Embed(ctx, "weekend hiking trail conditions alpine")

	simNear := CosineSimilarity(base, near)
	simFar := CosineSimilarity(base, far)
	if simNear <= simFar {
		t.Errorf("similarity near = %v, far = %v; want near > far", simNear, simFar)
	}
}

func TestHashEmbedderEmptyText(t *testing.T) {
	emb := NewHashEmbedder(32)
	vec, err := emb.Embed(context.Background(), "   ")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	for i, v := range vec {
		if v != 0 {
			t.Fatalf("vec[%d] = %v, want all zeros for empty text", i, v)
		}
	}
}

func TestCosineSimilarity(t *testing.T) {
	cases := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0}, []float32{1, 0}, 1.0},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0.0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1.0},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0.0},
		{"dim mismatch", []float32{1, 0}, []float32{1, 0, 0}, 0.0},
		{"nil", nil, []float32{1}, 0.0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := CosineSimilarity(tc.a, tc.b)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("CosineSimilarity = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestTokenize(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"Hello, World!", []string{"hello", "world"}},
		{"snake_case kebab-case", []string{"snake_case", "kebab-case"}},
		{"a I x", nil},
		{"version 2.0 released", []string{"version", "released"}},
	}
	for _, tc := range cases {
		got := tokenize(tc.in)
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("tokenize(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestNewEmbedderHashProvider(t *testing.T) {
	cfg := config.Default().Embedding
	cfg.Provider = "hash"
	cfg.Dimension = 48

	emb := NewEmbedder(cfg)
	if emb.Dimensions() != 48 {
		t.Errorf("dims = %d, want 48", emb.Dimensions())
	}
	if emb.Model() == "" {
		t.Error("model name is empty")
	}
}
