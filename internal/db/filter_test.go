package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestFilterBuilder(t *testing.T) {
	cutoff := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	got := NewFilter().
		Eq("user_id", "u1").
		Lt("updated_at", cutoff).
		Build()

	require.Equal(t, bson.M{
		"user_id":    "u1",
		"updated_at": bson.M{"$lt": cutoff},
	}, got)
}

func TestFilterBuilder_EmptyMatchesAll(t *testing.T) {
	require.Equal(t, bson.M{}, NewFilter().Build())
}
