//go:build !ncnn || !cgo || stub

package main

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go_waifu2x/core"
	"go_waifu2x/db"
	"go_waifu2x/imageio"
	"go_waifu2x/logging"
	"go_waifu2x/upscaler"
)

// newTestApp returns an app with config loaded from an isolated data
// directory and the default cunet model installed.
func newTestApp(t *testing.T) *app {
	t.Helper()
	isolateEnv(t)
	disableColor(t)

	cfg, err := core.LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	installTestModel(t, cfg.ModelsDir, cfg.Model, cfg.Noise, cfg.Scale)

	a := newApp()
	a.cfg = cfg
	a.stderr = io.Discard
	a.logger = logging.NewNop()
	return a
}

func installTestModel(t *testing.T, modelsDir, model string, noise, scale int) {
	t.Helper()
	m, err := upscaler.ParseModelType(model)
	if err != nil {
		t.Fatal(err)
	}
	param, bin := upscaler.ModelPaths(modelsDir, m, noise, scale)
	writeFile(t, param, []byte("7767517\n3 3\nInput input 0 1 input\n"))
	writeFile(t, bin, []byte{0, 0, 0, 0, 1, 2, 3, 4})
}

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 16), G: uint8(y * 16), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	writeFile(t, path, buf.Bytes())
}

func openTestPipeline(t *testing.T, a *app) *pipeline {
	t.Helper()
	p, err := a.openPipeline(false)
	if err != nil {
		t.Fatalf("openPipeline() error: %v", err)
	}
	t.Cleanup(func() { p.close() })
	return p
}

func newTestRunner(t *testing.T, a *app, p *pipeline, resume bool) *batchRunner {
	t.Helper()
	batchID, err := p.repo.StartBatch(context.Background(), "test")
	if err != nil {
		t.Fatal(err)
	}
	r, err := a.runner(p, batchID, resume)
	if err != nil {
		t.Fatalf("runner() error: %v", err)
	}
	return r
}

func imageSize(t *testing.T, path string) (int, int) {
	t.Helper()
	img, _, err := imageio.DecodeFile(path)
	if err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return img.Bounds().Dx(), img.Bounds().Dy()
}

func TestBatchRunner_Run(t *testing.T) {
	a := newTestApp(t)
	a.cfg.Workers = 2
	p := openTestPipeline(t, a)
	r := newTestRunner(t, a, p, false)

	in := t.TempDir()
	var inputs []string
	for _, name := range []string{"a.png", "b.png", "c.png"} {
		path := filepath.Join(in, name)
		writePNG(t, path, 8, 6)
		inputs = append(inputs, path)
	}
	out := filepath.Join(t.TempDir(), "out")

	stats := r.run(context.Background(), r.plan(inputs, out))
	if stats.Done != 3 || stats.total() != 3 {
		t.Fatalf("stats = %+v, want 3 done", stats)
	}

	for _, name := range []string{"a.png", "b.png", "c.png"} {
		w, h := imageSize(t, filepath.Join(out, name))
		if w != 16 || h != 12 {
			t.Errorf("%s is %dx%d, want 16x12", name, w, h)
		}
	}

	summary, err := p.repo.BatchSummary(context.Background(), r.BatchID)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Done != 3 || !summary.Complete() {
		t.Errorf("summary = %+v", summary)
	}
	if m := p.stats.JobMetrics(); m.Done != 3 || m.ByModel["cunet"] == nil {
		t.Errorf("metrics = %+v", m)
	}

	jobs, err := p.repo.ListBatch(context.Background(), r.BatchID)
	if err != nil {
		t.Fatal(err)
	}
	for _, j := range jobs {
		if j.Width != 8 || j.Height != 6 || j.OutWidth != 16 || j.OutHeight != 12 {
			t.Errorf("job %s dims %dx%d -> %dx%d", j.InputPath, j.Width, j.Height, j.OutWidth, j.OutHeight)
		}
		if j.InputSHA256 == "" {
			t.Errorf("job %s has no input checksum", j.InputPath)
		}
	}
}

func TestBatchRunner_ResumeSkipsFinishedInputs(t *testing.T) {
	a := newTestApp(t)
	p := openTestPipeline(t, a)

	in := filepath.Join(t.TempDir(), "art.png")
	writePNG(t, in, 4, 4)
	items := planOutputs([]string{in}, "", 2, imageio.FormatPNG)

	first := newTestRunner(t, a, p, true)
	if stats := first.run(context.Background(), items); stats.Done != 1 {
		t.Fatalf("first run = %+v, want 1 done", stats)
	}

	second := newTestRunner(t, a, p, true)
	if stats := second.run(context.Background(), items); stats.Skipped != 1 {
		t.Errorf("resumed run = %+v, want 1 skipped", stats)
	}
	if m := p.stats.JobMetrics(); m.Skipped != 1 {
		t.Errorf("metrics skipped = %d, want 1", m.Skipped)
	}

	// Changed content is upscaled again.
	writePNG(t, in, 5, 5)
	third := newTestRunner(t, a, p, true)
	if stats := third.run(context.Background(), items); stats.Done != 1 {
		t.Errorf("run after edit = %+v, want 1 done", stats)
	}

	// Without --resume nothing is skipped.
	fourth := newTestRunner(t, a, p, false)
	if stats := fourth.run(context.Background(), items); stats.Done != 1 {
		t.Errorf("run without resume = %+v, want 1 done", stats)
	}
}

func TestBatchRunner_Failures(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(t *testing.T, a *app, path string)
		contains string
	}{
		{
			name: "corrupt image",
			setup: func(t *testing.T, a *app, path string) {
				writeFile(t, path, []byte("not a png"))
			},
			contains: "invalid image",
		},
		{
			name: "input over size limit",
			setup: func(t *testing.T, a *app, path string) {
				writePNG(t, path, 16, 16)
				a.cfg.MaxInputBytes = 10
			},
			contains: ErrInputTooLarge.Error(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestApp(t)
			path := filepath.Join(t.TempDir(), "bad.png")
			tt.setup(t, a, path)

			p := openTestPipeline(t, a)
			r := newTestRunner(t, a, p, false)

			stats := r.run(context.Background(), r.plan([]string{path}, ""))
			if stats.Failed != 1 {
				t.Fatalf("stats = %+v, want 1 failed", stats)
			}

			jobs, err := p.repo.ListBatch(context.Background(), r.BatchID)
			if err != nil || len(jobs) != 1 {
				t.Fatalf("ListBatch() = %v, %v", jobs, err)
			}
			if jobs[0].Status != core.JobFailed || !strings.Contains(jobs[0].ErrorMessage, tt.contains) {
				t.Errorf("job = %s %q, want failed containing %q", jobs[0].Status, jobs[0].ErrorMessage, tt.contains)
			}
		})
	}
}

func TestBatchRunner_CancelledContextStartsNothing(t *testing.T) {
	a := newTestApp(t)
	p := openTestPipeline(t, a)
	r := newTestRunner(t, a, p, false)

	in := filepath.Join(t.TempDir(), "a.png")
	writePNG(t, in, 4, 4)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if stats := r.run(ctx, r.plan([]string{in}, "")); stats.total() != 0 {
		t.Errorf("stats = %+v, want nothing processed", stats)
	}
}

func TestBatchRunner_ShutdownCancelsQueuedJobs(t *testing.T) {
	a := newTestApp(t)
	p := openTestPipeline(t, a)
	r := newTestRunner(t, a, p, false)

	in := filepath.Join(t.TempDir(), "a.png")
	writePNG(t, in, 4, 4)

	p.mgr.Trigger()
	if got := r.processFile(batchItem{Input: in, Output: in + ".out.png"}); got != resultCancelled {
		t.Fatalf("processFile() = %v, want cancelled", got)
	}

	jobs, err := p.repo.ListBatch(context.Background(), r.BatchID)
	if err != nil || len(jobs) != 1 {
		t.Fatalf("ListBatch() = %v, %v", jobs, err)
	}
	if jobs[0].Status != core.JobFailed || jobs[0].ErrorMessage != "interrupted" {
		t.Errorf("job = %s %q, want failed interrupted", jobs[0].Status, jobs[0].ErrorMessage)
	}
}

func TestNewBatchRunner_InvalidFormat(t *testing.T) {
	_, err := newBatchRunner(batchConfig{Format: "gif"})
	if code := core.GetErrorCode(err); code != core.ErrCodeInvalidValue {
		t.Errorf("code = %q, want %q", code, core.ErrCodeInvalidValue)
	}
}

func TestRunUpscale(t *testing.T) {
	a := newTestApp(t)

	in := t.TempDir()
	writePNG(t, filepath.Join(in, "one.png"), 4, 4)
	writePNG(t, filepath.Join(in, "two.png"), 4, 4)
	out := filepath.Join(t.TempDir(), "out")

	var buf bytes.Buffer
	if err := a.runUpscale(&buf, []string{in}, out, false); err != nil {
		t.Fatalf("runUpscale() error: %v", err)
	}
	if !strings.Contains(buf.String(), "upscaled") {
		t.Errorf("summary missing upscaled count:\n%s", buf.String())
	}
	for _, name := range []string{"one.png", "two.png"} {
		if _, err := os.Stat(filepath.Join(out, name)); err != nil {
			t.Errorf("output %s: %v", name, err)
		}
	}
}

func TestRunUpscale_PartialFailure(t *testing.T) {
	a := newTestApp(t)

	in := t.TempDir()
	writePNG(t, filepath.Join(in, "good.png"), 4, 4)
	writeFile(t, filepath.Join(in, "bad.png"), []byte("garbage"))

	err := a.runUpscale(io.Discard, []string{in}, filepath.Join(t.TempDir(), "out"), false)
	if !errors.Is(err, core.ErrPartialFailure) {
		t.Fatalf("error = %v, want ErrPartialFailure", err)
	}
	if core.ExitCodeForError(err) != core.ExitCodePartialFailure {
		t.Errorf("exit code = %d", core.ExitCodeForError(err))
	}
}

func TestRunUpscale_MissingModel(t *testing.T) {
	a := newTestApp(t)
	a.cfg.Model = "upconv7-photo"

	in := filepath.Join(t.TempDir(), "a.png")
	writePNG(t, in, 4, 4)

	err := a.runUpscale(io.Discard, []string{in}, "", false)
	if err == nil || !strings.Contains(err.Error(), "models pull --model upconv7-photo") {
		t.Errorf("error = %v, want a models pull hint", err)
	}
}

func TestPipeline_SettlesInterruptedJobs(t *testing.T) {
	a := newTestApp(t)

	database, err := db.Open(a.cfg.DatabasePath, a.logger)
	if err != nil {
		t.Fatal(err)
	}
	repo := db.NewRepository(database)
	job := &core.UpscaleJob{BatchID: "old", InputPath: "/x.png", OutputPath: "/y.png", Model: "cunet", Scale: 2}
	if err := repo.CreateJob(context.Background(), job); err != nil {
		t.Fatal(err)
	}
	if err := repo.MarkRunning(context.Background(), job.ID, 4, 4); err != nil {
		t.Fatal(err)
	}
	database.Close()

	p := openTestPipeline(t, a)
	got, err := p.repo.GetJob(context.Background(), job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != core.JobFailed {
		t.Errorf("status = %s, want failed", got.Status)
	}
}

func TestWatcher_ProcessReady(t *testing.T) {
	a := newTestApp(t)
	a.cfg.WatchDir = t.TempDir()
	a.cfg.WatchInterval = time.Hour

	session, err := a.openWatch(false)
	if err != nil {
		t.Fatalf("openWatch() error: %v", err)
	}
	defer session.p.close()

	writePNG(t, filepath.Join(a.cfg.WatchDir, "drop.png"), 4, 4)
	ctx := context.Background()
	session.watcher.processReady(ctx)
	session.watcher.processReady(ctx)

	out := filepath.Join(a.cfg.WatchDir, "upscaled", "drop.png")
	if w, h := imageSize(t, out); w != 8 || h != 8 {
		t.Errorf("output is %dx%d, want 8x8", w, h)
	}

	// A third poll finds nothing new.
	before, _ := os.Stat(out)
	session.watcher.processReady(ctx)
	after, _ := os.Stat(out)
	if !after.ModTime().Equal(before.ModTime()) {
		t.Error("unchanged input was processed again")
	}
}

func TestWatchSession_StopEndsRun(t *testing.T) {
	a := newTestApp(t)
	a.cfg.WatchDir = t.TempDir()
	a.cfg.WatchInterval = 10 * time.Millisecond

	session, err := a.openWatch(false)
	if err != nil {
		t.Fatalf("openWatch() error: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- session.run() }()
	time.Sleep(30 * time.Millisecond)
	session.stop()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run() error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run() did not return after stop")
	}
	if session.p.db.Ping(context.Background()) == nil {
		t.Error("database should be closed after run returns")
	}
}
