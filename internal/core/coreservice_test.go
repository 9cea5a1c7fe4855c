package core

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/jo-hoe/sandmap/internal/backend/database"
	"github.com/jo-hoe/sandmap/internal/backend/objectstore"
	"github.com/jo-hoe/sandmap/internal/geojson"
)

type fakeStore struct {
	mu      sync.Mutex
	uploads int
	url     string
	err     error
}

func (s *fakeStore) Upload(ctx context.Context, data []byte, options objectstore.UploadOptions) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploads++
	if s.err != nil {
		return "", s.err
	}
	return s.url, nil
}

type fakeDispatcher struct {
	mu       sync.Mutex
	messages []string
	err      error
	closed   bool
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, message string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.messages = append(d.messages, message)
	return nil
}

func (d *fakeDispatcher) Close() error {
	d.closed = true
	return nil
}

func newTestService(t *testing.T) (*CoreService, *fakeStore, *fakeDispatcher) {
	t.Helper()

	db, err := database.NewSQLiteDatabase(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteDatabase error: %v", err)
	}
	if _, err := db.CreateDatabase(); err != nil {
		t.Fatalf("CreateDatabase error: %v", err)
	}

	store := &fakeStore{url: "https://cdn.example.com/sand/a.png"}
	dispatcher := &fakeDispatcher{}
	config := &ServiceConfig{Storage: objectstore.Config{Type: "local", Folder: "sand"}}
	service := NewCoreServiceWithDependencies(config, db, store, dispatcher)
	t.Cleanup(func() { _ = service.Close() })
	return service, store, dispatcher
}

func pngBytes(t *testing.T) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 200, G: 180, B: 120, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode error: %v", err)
	}
	return buf.Bytes()
}

func floatPtr(v float64) *float64 {
	return &v
}

func validCorrelation(id int64) CorrelateRequest {
	return CorrelateRequest{
		SubmissionID: id,
		Scale:        "mm",
		Size:         floatPtr(12.5),
		D90:          floatPtr(0.4),
		D50Mean:      floatPtr(0.25),
	}
}

func submit(t *testing.T, service *CoreService) *database.Submission {
	t.Helper()
	return submitAt(t, service, 10.0, 20.0)
}

func submitAt(t *testing.T, service *CoreService, latitude, longitude float64) *database.Submission {
	t.Helper()

	submission, err := service.Submit(context.Background(), SubmitRequest{
		Image:     pngBytes(t),
		MimeType:  "image/png",
		Latitude:  latitude,
		Longitude: longitude,
	})
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	return submission
}

func assertKind(t *testing.T, err error, kind Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	if got := KindOf(err); got != kind {
		t.Fatalf("expected kind %s, got %s (%v)", kind, got, err)
	}
}

func TestSubmit_StoresAndDispatches(t *testing.T) {
	service, store, dispatcher := newTestService(t)

	submission := submit(t, service)

	if submission.ID == 0 {
		t.Fatalf("expected assigned id")
	}
	if submission.Image != store.url {
		t.Errorf("expected image %q, got %q", store.url, submission.Image)
	}
	if submission.ProcessedAt != nil || submission.Size != nil {
		t.Errorf("new submission must be pending: %+v", submission)
	}
	if len(dispatcher.messages) != 1 {
		t.Fatalf("expected 1 dispatched message, got %d", len(dispatcher.messages))
	}
	expected := "1,https://cdn.example.com/sand/a.png"
	if dispatcher.messages[0] != expected {
		t.Errorf("expected message %q, got %q", expected, dispatcher.messages[0])
	}
}

func TestSubmit_RejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name    string
		request SubmitRequest
	}{
		{"disallowed mime type", SubmitRequest{Image: []byte("GIF89a"), MimeType: "image/gif", Latitude: 1, Longitude: 1}},
		{"empty image", SubmitRequest{Image: nil, MimeType: "image/png", Latitude: 1, Longitude: 1}},
		{"latitude out of range", SubmitRequest{Image: pngBytes(t), MimeType: "image/png", Latitude: 91, Longitude: 1}},
		{"longitude out of range", SubmitRequest{Image: pngBytes(t), MimeType: "image/png", Latitude: 1, Longitude: -181}},
		{"content does not match type", SubmitRequest{Image: pngBytes(t), MimeType: "image/jpeg", Latitude: 1, Longitude: 1}},
		{"not an image", SubmitRequest{Image: []byte("hello"), MimeType: "image/png", Latitude: 1, Longitude: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, store, dispatcher := newTestService(t)

			_, err := service.Submit(context.Background(), tt.request)
			assertKind(t, err, KindInvalidInput)

			if store.uploads != 0 {
				t.Errorf("expected no upload, got %d", store.uploads)
			}
			if len(dispatcher.messages) != 0 {
				t.Errorf("expected no dispatch, got %v", dispatcher.messages)
			}
			submissions, err := service.ListSubmissions(context.Background())
			if err != nil {
				t.Fatalf("ListSubmissions error: %v", err)
			}
			if len(submissions) != 0 {
				t.Errorf("expected no stored submission, got %d", len(submissions))
			}
		})
	}
}

func TestSubmit_AcceptsMimeTypeParameters(t *testing.T) {
	service, _, _ := newTestService(t)

	_, err := service.Submit(context.Background(), SubmitRequest{
		Image:     pngBytes(t),
		MimeType:  "Image/PNG; charset=binary",
		Latitude:  -90,
		Longitude: 180,
	})
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}
}

func TestSubmit_UploadFailure(t *testing.T) {
	service, store, dispatcher := newTestService(t)
	store.err = errors.New("bucket unavailable")

	_, err := service.Submit(context.Background(), SubmitRequest{Image: pngBytes(t), MimeType: "image/png"})
	assertKind(t, err, KindUploadFailed)

	submissions, _ := service.ListSubmissions(context.Background())
	if len(submissions) != 0 {
		t.Errorf("expected nothing stored after failed upload, got %d", len(submissions))
	}
	if len(dispatcher.messages) != 0 {
		t.Errorf("expected no dispatch after failed upload")
	}
}

func TestSubmit_EmptyUploadReference(t *testing.T) {
	service, store, _ := newTestService(t)
	store.url = ""

	_, err := service.Submit(context.Background(), SubmitRequest{Image: pngBytes(t), MimeType: "image/png"})
	assertKind(t, err, KindUploadFailed)
}

func TestSubmit_DispatchFailureKeepsSubmission(t *testing.T) {
	service, _, dispatcher := newTestService(t)
	dispatcher.err = errors.New("queue down")

	_, err := service.Submit(context.Background(), SubmitRequest{Image: pngBytes(t), MimeType: "image/png", Latitude: 1, Longitude: 2})
	assertKind(t, err, KindDispatchFailed)

	submissions, err := service.ListSubmissions(context.Background())
	if err != nil {
		t.Fatalf("ListSubmissions error: %v", err)
	}
	if len(submissions) != 1 {
		t.Fatalf("expected stored submission to survive dispatch failure, got %d", len(submissions))
	}
	if submissions[0].IsProcessed() {
		t.Errorf("expected submission to remain pending")
	}
}

func TestCorrelate_RoundTrip(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()
	processedAt := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return processedAt }

	submission := submit(t, service)

	result, err := service.Correlate(ctx, validCorrelation(submission.ID))
	if err != nil {
		t.Fatalf("Correlate error: %v", err)
	}
	if result.SubmissionID != submission.ID {
		t.Errorf("expected submission id %d, got %d", submission.ID, result.SubmissionID)
	}

	got, err := service.GetSubmission(ctx, submission.ID)
	if err != nil {
		t.Fatalf("GetSubmission error: %v", err)
	}
	if got.Latitude != 10.0 || got.Longitude != 20.0 {
		t.Errorf("unexpected coordinates %v,%v", got.Latitude, got.Longitude)
	}
	if got.Size == nil || *got.Size != 12.5 {
		t.Errorf("expected size 12.5, got %v", got.Size)
	}
	if got.ProcessedAt == nil || !got.ProcessedAt.Equal(processedAt) {
		t.Errorf("expected processedAt %v, got %v", processedAt, got.ProcessedAt)
	}

	stored, err := service.GetResult(ctx, submission.ID)
	if err != nil {
		t.Fatalf("GetResult error: %v", err)
	}
	if stored.Scale != "mm" || stored.D90 != 0.4 || stored.D50Mean != 0.25 {
		t.Errorf("unexpected stored result %+v", stored)
	}
	if stored.D10 != nil || stored.D50 != nil {
		t.Errorf("expected omitted percentiles to stay absent: %+v", stored)
	}
}

func TestCorrelate_Twice(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()
	submission := submit(t, service)

	if _, err := service.Correlate(ctx, validCorrelation(submission.ID)); err != nil {
		t.Fatalf("first Correlate error: %v", err)
	}

	second := validCorrelation(submission.ID)
	second.Scale = "px"
	second.Size = floatPtr(99)
	_, err := service.Correlate(ctx, second)
	assertKind(t, err, KindConflict)

	got, err := service.GetSubmission(ctx, submission.ID)
	if err != nil {
		t.Fatalf("GetSubmission error: %v", err)
	}
	if *got.Size != 12.5 {
		t.Errorf("expected original size to be kept, got %v", *got.Size)
	}
	stored, err := service.GetResult(ctx, submission.ID)
	if err != nil {
		t.Fatalf("GetResult error: %v", err)
	}
	if stored.Scale != "mm" {
		t.Errorf("expected original scale, got %q", stored.Scale)
	}
}

func TestCorrelate_UnknownSubmission(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := service.Correlate(ctx, validCorrelation(404))
	assertKind(t, err, KindNotFound)

	_, err = service.GetResult(ctx, 404)
	assertKind(t, err, KindNotFound)
}

func TestCorrelate_InvalidInput(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*CorrelateRequest)
	}{
		{"missing size", func(r *CorrelateRequest) { r.Size = nil }},
		{"missing D90", func(r *CorrelateRequest) { r.D90 = nil }},
		{"missing D50mean", func(r *CorrelateRequest) { r.D50Mean = nil }},
		{"missing scale", func(r *CorrelateRequest) { r.Scale = "" }},
		{"non-positive id", func(r *CorrelateRequest) { r.SubmissionID = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, _, _ := newTestService(t)
			submission := submit(t, service)

			request := validCorrelation(submission.ID)
			tt.modify(&request)
			_, err := service.Correlate(context.Background(), request)
			assertKind(t, err, KindInvalidInput)

			got, _ := service.GetSubmission(context.Background(), submission.ID)
			if got.IsProcessed() {
				t.Errorf("rejected correlation must not process the submission")
			}
		})
	}
}

func TestProcessedIffResultExists(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()

	processed := submit(t, service)
	pending := submit(t, service)
	if _, err := service.Correlate(ctx, validCorrelation(processed.ID)); err != nil {
		t.Fatalf("Correlate error: %v", err)
	}

	submissions, err := service.ListSubmissions(ctx)
	if err != nil {
		t.Fatalf("ListSubmissions error: %v", err)
	}
	for _, submission := range submissions {
		_, resultErr := service.GetResult(ctx, submission.ID)
		hasResult := resultErr == nil
		if submission.IsProcessed() != hasResult {
			t.Errorf("submission %d: processed=%v but result present=%v", submission.ID, submission.IsProcessed(), hasResult)
		}
		if (submission.ProcessedAt == nil) != (submission.Size == nil) {
			t.Errorf("submission %d: processedAt and size must be set together", submission.ID)
		}
	}
	if _, err := service.GetResult(ctx, pending.ID); KindOf(err) != KindNotFound {
		t.Errorf("expected pending submission to have no result, got %v", err)
	}
}

func TestExportFeatures_Empty(t *testing.T) {
	service, _, _ := newTestService(t)

	collection, err := service.ExportFeatures(context.Background())
	if err != nil {
		t.Fatalf("ExportFeatures error: %v", err)
	}
	if collection.Features == nil || len(collection.Features) != 0 {
		t.Fatalf("expected empty non-nil features, got %v", collection.Features)
	}
}

func TestExportFeatures_NearbyPointsStaySeparate(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()

	first := submit(t, service)
	submit(t, service)
	if _, err := service.Correlate(ctx, validCorrelation(first.ID)); err != nil {
		t.Fatalf("Correlate error: %v", err)
	}

	collection, err := service.ExportFeatures(ctx)
	if err != nil {
		t.Fatalf("ExportFeatures error: %v", err)
	}
	if len(collection.Features) != 2 {
		t.Fatalf("expected 2 features, got %d", len(collection.Features))
	}
	for i, feature := range collection.Features {
		if feature.Geometry.Longitude() != 20.0 || feature.Geometry.Latitude() != 10.0 {
			t.Errorf("feature %d: unexpected position %v,%v", i, feature.Geometry.Longitude(), feature.Geometry.Latitude())
		}
		if feature.Properties.IsCluster() {
			t.Errorf("feature %d: export must not cluster", i)
		}
	}
}

func TestExportFeatures_CloseNeighboursKeepExactPositions(t *testing.T) {
	service, _, _ := newTestService(t)

	origin := submitAt(t, service, 0, 0)
	neighbour := submitAt(t, service, 0.0001, 0.0001)

	collection, err := service.ExportFeatures(context.Background())
	if err != nil {
		t.Fatalf("ExportFeatures error: %v", err)
	}
	if len(collection.Features) != 2 {
		t.Fatalf("expected 2 features, got %d", len(collection.Features))
	}

	want := map[int64][2]float64{
		origin.ID:    {0, 0},
		neighbour.ID: {0.0001, 0.0001},
	}
	for _, feature := range collection.Features {
		properties, ok := feature.Properties.(geojson.SingleProperties)
		if !ok {
			t.Fatalf("export must not cluster, got %+v", feature.Properties)
		}
		position, ok := want[properties.ID]
		if !ok {
			t.Fatalf("unexpected feature id %d", properties.ID)
		}
		delete(want, properties.ID)
		if feature.Geometry.Longitude() != position[1] || feature.Geometry.Latitude() != position[0] {
			t.Errorf("feature %d: expected [%v,%v], got [%v,%v]", properties.ID,
				position[1], position[0], feature.Geometry.Longitude(), feature.Geometry.Latitude())
		}
	}
}

func TestListStale(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()
	base := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	service.now = func() time.Time { return base.Add(-3 * time.Hour) }
	old := submit(t, service)
	oldProcessed := submit(t, service)
	service.now = func() time.Time { return base.Add(-time.Minute) }
	submit(t, service)

	service.now = func() time.Time { return base }
	if _, err := service.Correlate(ctx, validCorrelation(oldProcessed.ID)); err != nil {
		t.Fatalf("Correlate error: %v", err)
	}

	stale, err := service.ListStale(ctx, time.Hour)
	if err != nil {
		t.Fatalf("ListStale error: %v", err)
	}
	if len(stale) != 1 || stale[0].ID != old.ID {
		t.Fatalf("expected only submission %d to be stale, got %v", old.ID, stale)
	}

	_, err = service.ListStale(ctx, 0)
	assertKind(t, err, KindInvalidInput)
}

func TestRedispatch(t *testing.T) {
	service, _, dispatcher := newTestService(t)
	ctx := context.Background()

	pending := submit(t, service)
	processed := submit(t, service)
	if _, err := service.Correlate(ctx, validCorrelation(processed.ID)); err != nil {
		t.Fatalf("Correlate error: %v", err)
	}
	dispatcher.messages = nil

	if _, err := service.Redispatch(ctx, pending.ID); err != nil {
		t.Fatalf("Redispatch error: %v", err)
	}
	if len(dispatcher.messages) != 1 {
		t.Fatalf("expected 1 redispatched message, got %d", len(dispatcher.messages))
	}

	_, err := service.Redispatch(ctx, processed.ID)
	assertKind(t, err, KindConflict)

	_, err = service.Redispatch(ctx, 999)
	assertKind(t, err, KindNotFound)

	dispatcher.err = errors.New("queue down")
	_, err = service.Redispatch(ctx, pending.ID)
	assertKind(t, err, KindDispatchFailed)
}

func TestRedispatchStale(t *testing.T) {
	service, _, dispatcher := newTestService(t)
	ctx := context.Background()
	base := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	service.now = func() time.Time { return base.Add(-2 * time.Hour) }
	first := submit(t, service)
	second := submit(t, service)
	service.now = func() time.Time { return base }
	dispatcher.messages = nil

	ids, err := service.RedispatchStale(ctx, time.Hour)
	if err != nil {
		t.Fatalf("RedispatchStale error: %v", err)
	}
	if len(ids) != 2 || ids[0] != first.ID || ids[1] != second.ID {
		t.Errorf("expected ids [%d %d], got %v", first.ID, second.ID, ids)
	}
	if len(dispatcher.messages) != 2 {
		t.Errorf("expected 2 messages, got %d", len(dispatcher.messages))
	}
}

func TestHealthy(t *testing.T) {
	service, _, _ := newTestService(t)

	if !service.Healthy() {
		t.Fatalf("expected open database to be healthy")
	}
	if err := service.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if service.Healthy() {
		t.Errorf("expected closed database to be unhealthy")
	}
}

func TestClose_ClosesDispatcher(t *testing.T) {
	service, _, dispatcher := newTestService(t)

	if err := service.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if !dispatcher.closed {
		t.Errorf("expected dispatcher to be closed")
	}
}
