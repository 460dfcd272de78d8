package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"inkforge/internal/adapter/repo"
	"inkforge/internal/domain"
	"inkforge/internal/ledger"
	"inkforge/internal/persist"
	"inkforge/internal/providers/imagesynth"
	"inkforge/internal/providers/predictions"
	"inkforge/internal/resolve"
	"inkforge/internal/storage"
)

// fakePredictions records created predictions and lets tests settle them.
type fakePredictions struct {
	mu        sync.Mutex
	nextID    int
	preds     map[string]*predictions.Prediction
	created   []string
	createErr error
}

func newFakePredictions() *fakePredictions {
	return &fakePredictions{preds: map[string]*predictions.Prediction{}}
}

func (f *fakePredictions) Create(ctx context.Context, model string, input map[string]any) (*predictions.Prediction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.nextID++
	id := fmt.Sprintf("pred-%d", f.nextID)
	pred := &predictions.Prediction{ID: id, Status: predictions.StatusStarting}
	f.preds[id] = pred
	f.created = append(f.created, model)
	return pred, nil
}

func (f *fakePredictions) Get(ctx context.Context, id string) (*predictions.Prediction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pred, ok := f.preds[id]
	if !ok {
		return nil, fmt.Errorf("prediction %s not found", id)
	}
	cp := *pred
	return &cp, nil
}

func (f *fakePredictions) succeed(id, url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.preds[id].Status = predictions.StatusSucceeded
	f.preds[id].Output = json.RawMessage(fmt.Sprintf("%q", url))
}

func (f *fakePredictions) succeedRaw(id string, output json.RawMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.preds[id].Status = predictions.StatusSucceeded
	f.preds[id].Output = output
}

func (f *fakePredictions) fail(id, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.preds[id].Status = predictions.StatusFailed
	f.preds[id].Error = message
}

type fakeSynth struct {
	output json.RawMessage
	err    error
}

func (f *fakeSynth) Generate(ctx context.Context, model imagesynth.Model, req imagesynth.Request) (json.RawMessage, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.output, nil
}

type fakeDTF struct {
	url string
	err error
}

func (f *fakeDTF) Optimize(ctx context.Context, imageURL string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.url, nil
}

type fakeAngles struct {
	failOn string
}

func (f *fakeAngles) RenderAngle(ctx context.Context, conceptURL, angle string) (string, error) {
	if angle == f.failOn {
		return "", fmt.Errorf("render %s refused", angle)
	}
	return "https://views.test/" + angle + ".png", nil
}

type fakeMesh struct {
	err error
}

func (f *fakeMesh) ConvertSTL(ctx context.Context, glbURL string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return strings.TrimSuffix(glbURL, ".glb") + ".stl", nil
}

// pngTransport serves fixed PNG bytes for any fetched URL so the persister
// never reaches the network.
type pngTransport struct {
	data []byte
}

func (t pngTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(bytes.NewReader(t.data)),
		Header:     http.Header{},
	}, nil
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

type testEnv struct {
	jobs    *repo.MemJobs
	assets  *repo.MemAssets
	wallets *repo.MemWallets
	models  *repo.MemModels3D
	preds   *fakePredictions
	synth   *fakeSynth
	angles  *fakeAngles
	mesh    *fakeMesh
	deps    *Deps
}

var testProduct = &domain.Product{ID: "p1", Name: "Retro Wave Tee", Slug: "retro-wave-tee", ProductType: "tshirt"}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	jobsRepo := repo.NewMemJobs()
	assets := repo.NewMemAssets()
	wallets := repo.NewMemWallets()
	wallets.SetBalance("u1", 100)
	models := repo.NewMemModels3D()
	preds := newFakePredictions()
	synth := &fakeSynth{output: json.RawMessage(`{"url":"https://img.test/sync.png"}`)}
	angles := &fakeAngles{}
	mesh := &fakeMesh{}

	store, err := storage.NewFileStore(t.TempDir(), "https://cdn.test")
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	persister := persist.New(store, assets, zerolog.Nop()).
		WithFetcher(&http.Client{Transport: pngTransport{data: testPNG(t)}})

	env := &testEnv{
		jobs:    jobsRepo,
		assets:  assets,
		wallets: wallets,
		models:  models,
		preds:   preds,
		synth:   synth,
		angles:  angles,
		mesh:    mesh,
	}
	env.deps = &Deps{
		Jobs:        jobsRepo,
		Assets:      assets,
		Products:    repo.NewMemProducts(testProduct),
		Models3D:    models,
		Ledger:      ledger.New(wallets, zerolog.Nop()),
		Resolver:    resolve.New(assets),
		Persister:   persister,
		Predictions: preds,
		Synth:       synth,
		AngleViews:  angles,
		Mesh:        mesh,
		Catalog:     imagesynth.DefaultCatalog(),
		ModelNames:  DefaultModelNames(),
		Costs:       ledger.DefaultCosts(),
		Log:         zerolog.Nop(),
	}
	return env
}

func (e *testEnv) newJob(t *testing.T, jobType domain.JobType, input any) *domain.Job {
	t.Helper()
	job := &domain.Job{
		ProductID: testProduct.ID,
		UserID:    "u1",
		Type:      jobType,
		Status:    domain.JobStatusQueued,
	}
	if input != nil {
		raw, err := json.Marshal(input)
		if err != nil {
			t.Fatalf("encode input: %v", err)
		}
		job.InputJSON = raw
	}
	if err := e.jobs.Create(context.Background(), job); err != nil {
		t.Fatalf("create job: %v", err)
	}
	return job
}

func (e *testEnv) addSourceAsset(t *testing.T, url string) *domain.Asset {
	t.Helper()
	asset := &domain.Asset{
		ProductID: testProduct.ID,
		Kind:      domain.AssetKindSource,
		Role:      domain.AssetRoleDesign,
		URL:       url,
	}
	if err := e.assets.Insert(context.Background(), asset); err != nil {
		t.Fatalf("insert asset: %v", err)
	}
	return asset
}

func (e *testEnv) addSucceededJob(t *testing.T, jobType domain.JobType) {
	t.Helper()
	job := &domain.Job{
		ProductID: testProduct.ID,
		UserID:    "u1",
		Type:      jobType,
		Status:    domain.JobStatusSucceeded,
	}
	if err := e.jobs.Create(context.Background(), job); err != nil {
		t.Fatalf("create prerequisite job: %v", err)
	}
}

func TestMockupWaitsForImageGenerate(t *testing.T) {
	env := newTestEnv(t)
	h := &compositeMockupHandler{env.deps}
	job := env.newJob(t, domain.JobTypeCompositeMockup, domain.CompositeMockupInput{Template: "flat_lay"})

	err := h.Start(context.Background(), job)
	if !errors.Is(err, ErrDependencyNotReady) {
		t.Fatalf("Start without prerequisite: err = %v, want ErrDependencyNotReady", err)
	}

	env.addSucceededJob(t, domain.JobTypeImageGenerate)
	env.addSourceAsset(t, "https://img.test/design.png")

	if err := h.Start(context.Background(), job); err != nil {
		t.Fatalf("Start with prerequisite: %v", err)
	}
	if job.Status != domain.JobStatusRunning || job.ExternalPredictionID == "" {
		t.Fatalf("job = %s/%q, want running with prediction id", job.Status, job.ExternalPredictionID)
	}

	var input domain.CompositeMockupInput
	if err := job.DecodeInput(&input); err != nil {
		t.Fatalf("decode input: %v", err)
	}
	if input.GarmentImageURL != "https://img.test/design.png" {
		t.Fatalf("garment url = %q, want the resolved source", input.GarmentImageURL)
	}
}

func TestMockupFinishesOnSucceededPrediction(t *testing.T) {
	env := newTestEnv(t)
	h := &compositeMockupHandler{env.deps}
	env.addSucceededJob(t, domain.JobTypeImageGenerate)
	env.addSourceAsset(t, "https://img.test/design.png")
	job := env.newJob(t, domain.JobTypeCompositeMockup, domain.CompositeMockupInput{Template: "mr_imagine"})

	if err := h.Start(context.Background(), job); err != nil {
		t.Fatalf("Start: %v", err)
	}
	env.preds.succeed(job.ExternalPredictionID, "https://out.test/mockup.png")
	if err := h.Check(context.Background(), job); err != nil {
		t.Fatalf("Check: %v", err)
	}
	if job.Status != domain.JobStatusSucceeded {
		t.Fatalf("status = %s, want succeeded", job.Status)
	}
	if job.ExternalPredictionID != "" {
		t.Fatalf("prediction id not cleared: %q", job.ExternalPredictionID)
	}

	mockup, err := env.assets.LatestByProductAndKind(context.Background(), testProduct.ID, domain.AssetKindMockup)
	if err != nil {
		t.Fatalf("mockup asset missing: %v", err)
	}
	if !mockup.IsPrimary || mockup.Role != domain.AssetRoleMockupMrImagine {
		t.Fatalf("mockup placement = {%s primary=%v}", mockup.Role, mockup.IsPrimary)
	}

	var output domain.AssetOutput
	if err := job.DecodeOutput(&output); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if output.URL == "" || output.StoragePath == "" {
		t.Fatalf("output = %+v, want url and storage_path", output)
	}
}

func TestGhostMannequinSkipsUnsupportedProduct(t *testing.T) {
	env := newTestEnv(t)
	h := &ghostMannequinHandler{env.deps}
	job := env.newJob(t, domain.JobTypeGhostMannequin, domain.GhostMannequinInput{ProductType: "mug"})

	err := h.Start(context.Background(), job)
	var skip *SkipError
	if !errors.As(err, &skip) {
		t.Fatalf("err = %v, want SkipError", err)
	}
	if !strings.Contains(skip.Reason, "mug") {
		t.Fatalf("reason = %q, want the product type named", skip.Reason)
	}
}

func TestRemoveBackgroundUsesLatestSource(t *testing.T) {
	env := newTestEnv(t)
	h := &removeBackgroundHandler{env.deps}
	env.addSourceAsset(t, "https://img.test/old.png")
	time.Sleep(2 * time.Millisecond)
	env.addSourceAsset(t, "https://img.test/new.png")
	job := env.newJob(t, domain.JobTypeRemoveBackground, nil)

	if err := h.Start(context.Background(), job); err != nil {
		t.Fatalf("Start: %v", err)
	}
	env.preds.succeed(job.ExternalPredictionID, "https://out.test/nobg.png")
	if err := h.Check(context.Background(), job); err != nil {
		t.Fatalf("Check: %v", err)
	}
	if job.Status != domain.JobStatusSucceeded {
		t.Fatalf("status = %s, want succeeded", job.Status)
	}
	if _, err := env.assets.LatestByProductAndKind(context.Background(), testProduct.ID, domain.AssetKindNoBG); err != nil {
		t.Fatalf("nobg asset missing: %v", err)
	}
}

func TestRemoveBackgroundNoSourceIsTerminal(t *testing.T) {
	env := newTestEnv(t)
	h := &removeBackgroundHandler{env.deps}
	job := env.newJob(t, domain.JobTypeRemoveBackground, nil)

	err := h.Start(context.Background(), job)
	if !errors.Is(err, resolve.ErrNoSource) {
		t.Fatalf("err = %v, want ErrNoSource", err)
	}
	if errors.Is(err, ErrDependencyNotReady) {
		t.Fatal("missing source must not soft-requeue")
	}
}

func TestUpscalePrefersOptimizedVariant(t *testing.T) {
	env := newTestEnv(t)
	h := &upscaleHandler{env.deps}
	env.addSourceAsset(t, "https://img.test/design.png")
	dtfAsset := &domain.Asset{ProductID: testProduct.ID, Kind: domain.AssetKindDTF, URL: "https://img.test/design-dtf.png"}
	if err := env.assets.Insert(context.Background(), dtfAsset); err != nil {
		t.Fatalf("insert dtf asset: %v", err)
	}
	job := env.newJob(t, domain.JobTypeUpscale, nil)

	if err := h.Start(context.Background(), job); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if job.Status != domain.JobStatusRunning {
		t.Fatalf("status = %s, want running", job.Status)
	}
}

func TestImageGenerateFanOut(t *testing.T) {
	env := newTestEnv(t)
	env.deps.DTF = &fakeDTF{url: "https://dtf.test/optimized.png"}
	h := &imageGenerateHandler{env.deps}
	job := env.newJob(t, domain.JobTypeImageGenerate, domain.ImageGenerateInput{Prompt: "neon tiger"})

	if err := h.Start(context.Background(), job); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if job.Status != domain.JobStatusRunning {
		t.Fatalf("status = %s, want running while async models pend", job.Status)
	}
	if job.ExternalPredictionID != domain.MultiPredictionID {
		t.Fatalf("prediction id = %q, want %q", job.ExternalPredictionID, domain.MultiPredictionID)
	}

	var output domain.ImageGenerateOutput
	if err := job.DecodeOutput(&output); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if !output.IsMultiModel || len(output.Outputs) != len(imagesynth.DefaultCatalog()) {
		t.Fatalf("outputs = %+v", output)
	}
	syncDone, pending := 0, 0
	for _, out := range output.Outputs {
		switch {
		case out.IsSynchronous && out.Status == domain.ModelOutputSucceeded:
			syncDone++
		case !out.IsSynchronous && out.Status == domain.ModelOutputPending:
			pending++
			env.preds.succeed(out.PredictionID, "https://out.test/"+out.ModelID+".png")
		}
	}
	if syncDone == 0 {
		t.Fatal("synchronous model did not settle during Start")
	}
	if pending == 0 {
		t.Fatal("no async sub-results pending")
	}

	if err := h.Check(context.Background(), job); err != nil {
		t.Fatalf("Check: %v", err)
	}
	if job.Status != domain.JobStatusSucceeded {
		t.Fatalf("status = %s, want succeeded once all terminal", job.Status)
	}
	if job.ExternalPredictionID != "" {
		t.Fatalf("prediction id not cleared: %q", job.ExternalPredictionID)
	}

	// One source asset per model plus the derived dtf variants.
	sources := 0
	dtfs := 0
	all, _ := env.assets.ListByProduct(context.Background(), testProduct.ID)
	for _, a := range all {
		switch a.Kind {
		case domain.AssetKindSource:
			sources++
		case domain.AssetKindDTF:
			dtfs++
		}
	}
	if sources != len(imagesynth.DefaultCatalog()) {
		t.Fatalf("source assets = %d, want %d", sources, len(imagesynth.DefaultCatalog()))
	}
	if dtfs != sources {
		t.Fatalf("dtf assets = %d, want one per source", dtfs)
	}
}

func TestImageGenerateAllModelsFailed(t *testing.T) {
	env := newTestEnv(t)
	env.synth.err = errors.New("synth down")
	env.preds.createErr = errors.New("predictions down")
	h := &imageGenerateHandler{env.deps}
	job := env.newJob(t, domain.JobTypeImageGenerate, domain.ImageGenerateInput{Prompt: "neon tiger"})

	err := h.Start(context.Background(), job)
	if err == nil || !strings.Contains(err.Error(), "all synthesis models failed") {
		t.Fatalf("err = %v, want all-failed error", err)
	}
}

func TestImageGeneratePartialFailureStillSucceeds(t *testing.T) {
	env := newTestEnv(t)
	h := &imageGenerateHandler{env.deps}
	job := env.newJob(t, domain.JobTypeImageGenerate, domain.ImageGenerateInput{Prompt: "neon tiger"})

	if err := h.Start(context.Background(), job); err != nil {
		t.Fatalf("Start: %v", err)
	}
	var output domain.ImageGenerateOutput
	if err := job.DecodeOutput(&output); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	for _, out := range output.Outputs {
		if out.Status == domain.ModelOutputPending {
			env.preds.fail(out.PredictionID, "nsfw filter")
		}
	}

	if err := h.Check(context.Background(), job); err != nil {
		t.Fatalf("Check: %v", err)
	}
	if job.Status != domain.JobStatusSucceeded {
		t.Fatalf("status = %s, want succeeded when at least one model won", job.Status)
	}
}

func newTestModel(t *testing.T, env *testEnv) *domain.Model3D {
	t.Helper()
	model := &domain.Model3D{
		ID:        "m1",
		UserID:    "u1",
		ProductID: testProduct.ID,
		Prompt:    "chess knight",
		Status:    domain.Model3DStatusPending,
	}
	env.models = repo.NewMemModels3D(model)
	env.deps.Models3D = env.models
	return model
}

func TestConceptDebitsBeforeGeneration(t *testing.T) {
	env := newTestEnv(t)
	newTestModel(t, env)
	h := &model3DConceptHandler{env.deps}
	job := env.newJob(t, domain.JobTypeModel3DConcept, domain.Model3DInput{ModelID: "m1", UserID: "u1", Prompt: "chess knight"})

	if err := h.Start(context.Background(), job); err != nil {
		t.Fatalf("Start: %v", err)
	}
	balance, _ := env.wallets.Balance(context.Background(), "u1")
	if balance != 90 {
		t.Fatalf("balance = %d, want 90 after concept debit", balance)
	}
	txns, _ := env.wallets.ListTransactions(context.Background(), "u1", 10)
	if len(txns) != 1 || txns[0].Amount != -10 || txns[0].Type != domain.TransactionDebit {
		t.Fatalf("transactions = %+v, want one -10 debit", txns)
	}
}

func TestConceptInsufficientBalance(t *testing.T) {
	env := newTestEnv(t)
	env.wallets.SetBalance("u1", 5)
	newTestModel(t, env)
	h := &model3DConceptHandler{env.deps}
	job := env.newJob(t, domain.JobTypeModel3DConcept, domain.Model3DInput{ModelID: "m1", UserID: "u1"})

	err := h.Start(context.Background(), job)
	if !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}

	balance, _ := env.wallets.Balance(context.Background(), "u1")
	if balance != 5 {
		t.Fatalf("balance = %d, want untouched 5", balance)
	}
	txns, _ := env.wallets.ListTransactions(context.Background(), "u1", 10)
	if len(txns) != 0 {
		t.Fatalf("transactions = %+v, want none recorded", txns)
	}
	model, _ := env.models.GetByID(context.Background(), "m1")
	if model.Status != domain.Model3DStatusFailed {
		t.Fatalf("model status = %s, want failed mirrored onto the record", model.Status)
	}
}

func TestConceptRefundsOnceOnProviderFailure(t *testing.T) {
	env := newTestEnv(t)
	newTestModel(t, env)
	h := &model3DConceptHandler{env.deps}
	job := env.newJob(t, domain.JobTypeModel3DConcept, domain.Model3DInput{ModelID: "m1", UserID: "u1"})

	if err := h.Start(context.Background(), job); err != nil {
		t.Fatalf("Start: %v", err)
	}
	env.preds.fail(job.ExternalPredictionID, "gpu on fire")

	if err := h.Check(context.Background(), job); err == nil {
		t.Fatal("Check on failed prediction must return the cause")
	}
	if err := h.Check(context.Background(), job); err == nil {
		t.Fatal("second Check must still return the cause")
	}

	balance, _ := env.wallets.Balance(context.Background(), "u1")
	if balance != 100 {
		t.Fatalf("balance = %d, want 100 restored exactly once", balance)
	}
	txns, _ := env.wallets.ListTransactions(context.Background(), "u1", 10)
	if len(txns) != 2 {
		t.Fatalf("transactions = %d, want debit plus single refund", len(txns))
	}
}

func TestConceptSuccessUpdatesModel(t *testing.T) {
	env := newTestEnv(t)
	newTestModel(t, env)
	h := &model3DConceptHandler{env.deps}
	job := env.newJob(t, domain.JobTypeModel3DConcept, domain.Model3DInput{ModelID: "m1", UserID: "u1"})

	if err := h.Start(context.Background(), job); err != nil {
		t.Fatalf("Start: %v", err)
	}
	env.preds.succeed(job.ExternalPredictionID, "https://out.test/concept.png")
	if err := h.Check(context.Background(), job); err != nil {
		t.Fatalf("Check: %v", err)
	}
	if job.Status != domain.JobStatusSucceeded {
		t.Fatalf("status = %s, want succeeded", job.Status)
	}
	model, _ := env.models.GetByID(context.Background(), "m1")
	if model.Status != domain.Model3DStatusConceptReady || model.ConceptURL != "https://out.test/concept.png" {
		t.Fatalf("model = {%s %q}", model.Status, model.ConceptURL)
	}
}

func TestAnglesMidFailureRefundsOnce(t *testing.T) {
	env := newTestEnv(t)
	model := newTestModel(t, env)
	model.ConceptURL = "https://out.test/concept.png"
	model.Status = domain.Model3DStatusConceptReady
	if err := env.models.Update(context.Background(), model); err != nil {
		t.Fatalf("seed model: %v", err)
	}
	env.addSucceededJob(t, domain.JobTypeModel3DConcept)
	env.angles.failOn = "left"

	h := &model3DAnglesHandler{env.deps}
	job := env.newJob(t, domain.JobTypeModel3DAngles, domain.Model3DInput{ModelID: "m1", UserID: "u1"})

	err := h.Start(context.Background(), job)
	if err == nil || !strings.Contains(err.Error(), "left") {
		t.Fatalf("err = %v, want the failed angle named", err)
	}

	balance, _ := env.wallets.Balance(context.Background(), "u1")
	if balance != 100 {
		t.Fatalf("balance = %d, want 100 after refund", balance)
	}
	txns, _ := env.wallets.ListTransactions(context.Background(), "u1", 10)
	if len(txns) != 2 {
		t.Fatalf("transactions = %d, want debit plus refund", len(txns))
	}
	stored, _ := env.models.GetByID(context.Background(), "m1")
	if stored.Status != domain.Model3DStatusFailed {
		t.Fatalf("model status = %s, want failed", stored.Status)
	}
}

func TestAnglesSettleDuringStart(t *testing.T) {
	env := newTestEnv(t)
	model := newTestModel(t, env)
	model.ConceptURL = "https://out.test/concept.png"
	model.Status = domain.Model3DStatusConceptReady
	if err := env.models.Update(context.Background(), model); err != nil {
		t.Fatalf("seed model: %v", err)
	}
	env.addSucceededJob(t, domain.JobTypeModel3DConcept)

	h := &model3DAnglesHandler{env.deps}
	job := env.newJob(t, domain.JobTypeModel3DAngles, domain.Model3DInput{ModelID: "m1", UserID: "u1"})

	if err := h.Start(context.Background(), job); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if job.Status != domain.JobStatusSucceeded {
		t.Fatalf("status = %s, want succeeded at Start", job.Status)
	}

	var output domain.Model3DAnglesOutput
	if err := job.DecodeOutput(&output); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if len(output.AngleImages) != 4 {
		t.Fatalf("angle images = %d, want 4", len(output.AngleImages))
	}
	stored, _ := env.models.GetByID(context.Background(), "m1")
	if stored.Status != domain.Model3DStatusAnglesReady {
		t.Fatalf("model status = %s, want angles_ready", stored.Status)
	}
}

func TestAnglesWaitForConcept(t *testing.T) {
	env := newTestEnv(t)
	newTestModel(t, env)
	h := &model3DAnglesHandler{env.deps}
	job := env.newJob(t, domain.JobTypeModel3DAngles, domain.Model3DInput{ModelID: "m1", UserID: "u1"})

	err := h.Start(context.Background(), job)
	if !errors.Is(err, ErrDependencyNotReady) {
		t.Fatalf("err = %v, want ErrDependencyNotReady", err)
	}
	balance, _ := env.wallets.Balance(context.Background(), "u1")
	if balance != 100 {
		t.Fatalf("balance = %d, dependency wait must not debit", balance)
	}
}

func TestReconstructCompletesModel(t *testing.T) {
	env := newTestEnv(t)
	model := newTestModel(t, env)
	model.Status = domain.Model3DStatusAnglesReady
	model.AngleImagesJSON = []byte(`{"front":"https://v.test/f.png","back":"https://v.test/b.png","left":"https://v.test/l.png","right":"https://v.test/r.png"}`)
	if err := env.models.Update(context.Background(), model); err != nil {
		t.Fatalf("seed model: %v", err)
	}
	env.addSucceededJob(t, domain.JobTypeModel3DAngles)

	h := &model3DReconstructHandler{env.deps}
	job := env.newJob(t, domain.JobTypeModel3DReconstruct, domain.Model3DInput{ModelID: "m1", UserID: "u1"})

	if err := h.Start(context.Background(), job); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if job.Status != domain.JobStatusRunning {
		t.Fatalf("status = %s, want running", job.Status)
	}
	stored, _ := env.models.GetByID(context.Background(), "m1")
	if stored.Status != domain.Model3DStatusReconstructing {
		t.Fatalf("model status = %s, want reconstructing", stored.Status)
	}

	env.preds.succeedRaw(job.ExternalPredictionID, json.RawMessage(
		`{"glb_url":"https://mesh.test/model.glb","triangle_count":15000,"processing_time":42.5}`))
	if err := h.Check(context.Background(), job); err != nil {
		t.Fatalf("Check: %v", err)
	}
	if job.Status != domain.JobStatusSucceeded {
		t.Fatalf("status = %s, want succeeded", job.Status)
	}

	stored, _ = env.models.GetByID(context.Background(), "m1")
	if stored.Status != domain.Model3DStatusCompleted {
		t.Fatalf("model status = %s, want completed", stored.Status)
	}
	if stored.GLBUrl == "" || stored.STLUrl == "" {
		t.Fatalf("model urls = {%q %q}, want stored mesh files", stored.GLBUrl, stored.STLUrl)
	}
	if stored.TriangleCount != 15000 || stored.ProcessingTimeSecs != 42.5 {
		t.Fatalf("model stats = {%d %v}", stored.TriangleCount, stored.ProcessingTimeSecs)
	}

	balance, _ := env.wallets.Balance(context.Background(), "u1")
	if balance != 60 {
		t.Fatalf("balance = %d, want 60 after 40-token debit", balance)
	}
}

func TestReconstructRefundsOnConversionFailure(t *testing.T) {
	env := newTestEnv(t)
	model := newTestModel(t, env)
	model.Status = domain.Model3DStatusAnglesReady
	model.AngleImagesJSON = []byte(`{"front":"https://v.test/f.png","back":"https://v.test/b.png","left":"https://v.test/l.png","right":"https://v.test/r.png"}`)
	if err := env.models.Update(context.Background(), model); err != nil {
		t.Fatalf("seed model: %v", err)
	}
	env.addSucceededJob(t, domain.JobTypeModel3DAngles)
	env.mesh.err = errors.New("mesh degenerate")

	h := &model3DReconstructHandler{env.deps}
	job := env.newJob(t, domain.JobTypeModel3DReconstruct, domain.Model3DInput{ModelID: "m1", UserID: "u1"})

	if err := h.Start(context.Background(), job); err != nil {
		t.Fatalf("Start: %v", err)
	}
	env.preds.succeedRaw(job.ExternalPredictionID, json.RawMessage(`{"glb_url":"https://mesh.test/model.glb"}`))
	if err := h.Check(context.Background(), job); err == nil {
		t.Fatal("Check must fail when stl conversion fails")
	}

	balance, _ := env.wallets.Balance(context.Background(), "u1")
	if balance != 100 {
		t.Fatalf("balance = %d, want 100 after refund", balance)
	}
}
