package sqlite

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/gestures/internal/gesture"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "gestures.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func storeTestClass(id string, templates int) *gesture.GestureClass {
	class := &gesture.GestureClass{
		Definition: gesture.GestureDefinition{
			ID:         id,
			Name:       "Test " + id,
			Category:   "custom",
			Classifier: gesture.ClassifierDTW,
		},
		MinTemplates: 3,
	}
	for i := 0; i < templates; i++ {
		samples := make([]gesture.Sample, 60)
		for j := range samples {
			samples[j] = gesture.Sample{AX: float64(j%10) * 0.5, AZ: 1.0, Timestamp: int64(j) * 20}
		}
		class.Templates = append(class.Templates, &gesture.GestureTemplate{
			ID:           id + "-t" + string(rune('0'+i)),
			GestureID:    id,
			Samples:      samples,
			RecordedAtMs: int64(i) * 10_000,
			DurationMs:   1180,
			SampleRate:   50,
		})
	}
	return class
}

func TestStoreOpenAppliesMigrations(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	var n int
	err := s.DB().QueryRow(`SELECT COUNT(*) FROM gesture_classes`).Scan(&n)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestStoreSaveAndLoadLibrary(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	require.NoError(t, s.SaveClass(storeTestClass("wave", 3)))
	require.NoError(t, s.SaveClass(storeTestClass("chop", 2)))

	classes, err := s.LoadLibrary()
	require.NoError(t, err)
	require.Len(t, classes, 2)

	// ordered by gesture id
	assert.Equal(t, "chop", classes[0].Definition.ID)
	assert.Equal(t, "wave", classes[1].Definition.ID)

	wave := classes[1]
	assert.Equal(t, "Test wave", wave.Definition.Name)
	assert.Equal(t, "custom", wave.Definition.Category)
	assert.Equal(t, gesture.ClassifierDTW, wave.Definition.Classifier)
	assert.Equal(t, 3, wave.MinTemplates)
	require.Len(t, wave.Templates, 3)

	tpl := wave.Templates[0]
	assert.Equal(t, "wave", tpl.GestureID)
	assert.Equal(t, int64(1180), tpl.DurationMs)
	assert.Equal(t, 50.0, tpl.SampleRate)
	// magnitude cache is rebuilt eagerly on load
	assert.Len(t, tpl.MagnitudeSeries, 60)

	want := storeTestClass("wave", 3).Templates[0].Samples
	if diff := cmp.Diff(want, tpl.Samples); diff != "" {
		t.Errorf("samples round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestStoreSaveClassReplacesTemplates(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	require.NoError(t, s.SaveClass(storeTestClass("wave", 5)))

	// resaving with fewer templates replaces, not appends
	require.NoError(t, s.SaveClass(storeTestClass("wave", 2)))

	classes, err := s.LoadLibrary()
	require.NoError(t, err)
	require.Len(t, classes, 1)
	assert.Len(t, classes[0].Templates, 2)
}

func TestStoreDeleteClass(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	require.NoError(t, s.SaveClass(storeTestClass("wave", 2)))
	require.NoError(t, s.DeleteClass("wave"))

	classes, err := s.LoadLibrary()
	require.NoError(t, err)
	assert.Empty(t, classes)

	// cascade removes the templates too
	var n int
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM gesture_templates`).Scan(&n))
	assert.Equal(t, 0, n)

	assert.ErrorIs(t, s.DeleteClass("wave"), gesture.ErrUnknownGesture)
}

func TestStoreEventLog(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	for i := 0; i < 5; i++ {
		err := s.RecordEvent(gesture.RecognitionResult{
			GestureID:        "tap",
			GestureName:      "Tap",
			Confidence:       0.9,
			Classifier:       gesture.ClassifierThreshold,
			RawScore:         4.2,
			Timestamp:        int64(i) * 1000,
			WindowDurationMs: 1480,
			Accepted:         true,
		})
		require.NoError(t, err)
	}
	require.NoError(t, s.RecordEvent(gesture.RecognitionResult{
		Classifier:      gesture.ClassifierDTW,
		Timestamp:       10_000,
		RejectionReason: gesture.RejectNoMatch,
	}))

	events, err := s.EventsInRange(0, 3000, 0)
	require.NoError(t, err)
	require.Len(t, events, 4)

	// newest first
	assert.Equal(t, int64(3000), events[0].Timestamp)
	assert.Equal(t, int64(0), events[3].Timestamp)
	assert.True(t, events[0].Accepted)
	assert.Equal(t, "tap", events[0].GestureID)
	assert.Equal(t, gesture.ClassifierThreshold, events[0].Classifier)

	rejected, err := s.EventsInRange(10_000, 10_000, 10)
	require.NoError(t, err)
	require.Len(t, rejected, 1)
	assert.False(t, rejected[0].Accepted)
	assert.Equal(t, gesture.RejectNoMatch, rejected[0].RejectionReason)
}

func TestStoreEventLimit(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	for i := 0; i < 10; i++ {
		require.NoError(t, s.RecordEvent(gesture.RecognitionResult{
			GestureID: "shake",
			Timestamp: int64(i),
			Accepted:  true,
		}))
	}

	events, err := s.EventsInRange(0, 100, 3)
	require.NoError(t, err)
	assert.Len(t, events, 3)
}
