// SPDX-License-Identifier: MIT

package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeepMergeRecursesMaps(t *testing.T) {
	base := JSON{
		"transcription": JSON{"enable": true, "language": "en"},
		"trim":          JSON{"enable": false},
	}
	overlay := JSON{
		"transcription": JSON{"language": "ru"},
	}
	got := DeepMerge(base, overlay)

	assert.Equal(t, JSON{
		"transcription": JSON{"enable": true, "language": "ru"},
		"trim":          JSON{"enable": false},
	}, got)
}

func TestDeepMergeReplacesNonMapValues(t *testing.T) {
	got := DeepMerge(JSON{"preset_ids": []any{1, 2}}, JSON{"preset_ids": []any{7}})
	assert.Equal(t, JSON{"preset_ids": []any{7}}, got)
}

func TestDeepMergeDoesNotMutateInputs(t *testing.T) {
	base := JSON{"a": JSON{"x": 1}}
	overlay := JSON{"a": JSON{"y": 2}}
	_ = DeepMerge(base, overlay)
	assert.Equal(t, JSON{"a": JSON{"x": 1}}, base)
	assert.Equal(t, JSON{"a": JSON{"y": 2}}, overlay)
}

func TestDeepMergeAssociativeOnDisjointKeys(t *testing.T) {
	a := JSON{"a": JSON{"x": 1}}
	b := JSON{"a": JSON{"y": 2}}
	c := JSON{"c": 3}

	left := DeepMerge(DeepMerge(a, b), c)
	right := DeepMerge(a, DeepMerge(b, c))
	assert.Equal(t, left, right)
}

func TestDeepMergeNilBase(t *testing.T) {
	got := DeepMerge(nil, JSON{"k": "v"})
	require.Equal(t, JSON{"k": "v"}, got)
}
