package conversion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/killallgit/opusify/internal/models"
	"github.com/killallgit/opusify/internal/services/artwork"
	"github.com/killallgit/opusify/internal/services/tags"
	"github.com/killallgit/opusify/internal/testutil"
	"github.com/killallgit/opusify/pkg/config"
	apperrors "github.com/killallgit/opusify/pkg/errors"
	"github.com/killallgit/opusify/pkg/ffmpeg"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockTranscoder is a mock implementation of Transcoder
type MockTranscoder struct {
	mock.Mock
}

func (m *MockTranscoder) Transcode(ctx context.Context, input, output string, opts ffmpeg.TranscodeOptions) error {
	args := m.Called(ctx, input, output, opts)
	return args.Error(0)
}

// MockProber is a mock implementation of Prober
type MockProber struct {
	mock.Mock
}

func (m *MockProber) GetMetadata(ctx context.Context, path string) (*ffmpeg.AudioMetadata, error) {
	args := m.Called(ctx, path)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ffmpeg.AudioMetadata), args.Error(1)
}

func (m *MockProber) ValidateAudioFile(ctx context.Context, path string, formats ...string) (*ffmpeg.AudioMetadata, error) {
	args := m.Called(ctx, path, formats)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ffmpeg.AudioMetadata), args.Error(1)
}

type countingProgress struct {
	ticks int
}

func (p *countingProgress) Add(n int) error {
	p.ticks += n
	return nil
}

// writesOutput makes a mocked Transcode call produce data at its output path
func writesOutput(fs afero.Fs, data []byte) func(mock.Arguments) {
	return func(args mock.Arguments) {
		_ = afero.WriteFile(fs, args.String(2), data, 0644)
	}
}

func testOptions() Options {
	return Options{
		SourceExt:         ".flac",
		TargetExt:         ".opus",
		SkipPrefixes:      []string{"._"},
		SourceFormat:      "flac",
		Transcode:         ffmpeg.DefaultTranscodeOptions(),
		VerifyTags:        true,
		DurationTolerance: time.Second,
		IgnoreTags:        []string{"encoder"},
		EmbedCover:        true,
		ExtractCover:      true,
	}
}

func newTestService(fs afero.Fs, tr Transcoder, pr Prober, opts Options) *Service {
	art := artwork.NewService(fs, artwork.Options{
		SiblingNames: []string{"cover", "folder"},
		Ext:          ".jpg",
		MaxSize:      1200,
		JPEGQuality:  90,
	})
	svc := NewService(fs, tr, pr, art, opts, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.newID = func() string { return "test-id" }
	return svc
}

func assertNoPartials(t *testing.T, fs afero.Fs, root string) {
	t.Helper()
	entries, err := afero.ReadDir(fs, root)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), models.PartialSuffix), "partial output left behind: %s", e.Name())
	}
}

func TestRun_EndToEnd(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	cover := testutil.JPEG(16, 16)
	src := testutil.FLAC(map[string]string{"TITLE": "Foo"},
		&testutil.Picture{MIMEType: "image/jpeg", Width: 16, Height: 16, Data: cover})
	require.NoError(t, afero.WriteFile(fs, "/music/track.flac", src, 0644))

	mockTr := new(MockTranscoder)
	hasPicture := mock.MatchedBy(func(o ffmpeg.TranscodeOptions) bool {
		return o.Metadata[pictureMetadataKey] != "" && o.Bitrate == "192k"
	})
	mockTr.On("Transcode", ctx, "/music/track.flac", "/music/.track.test-id.opus.part", hasPicture).
		Run(writesOutput(fs, testutil.FLAC(map[string]string{"title": "Foo", "encoder": "Lavf"}, nil))).
		Return(nil)

	svc := newTestService(fs, mockTr, nil, testOptions())
	progress := &countingProgress{}
	svc.SetProgress(progress)

	stats, err := svc.Run(ctx, "/music")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.Converted)
	assert.Equal(t, 1, stats.CoversWritten)
	assert.Equal(t, 0, stats.Failed)
	assert.Equal(t, 1, progress.ticks)

	out, err := tags.Read(fs, "/music/track.opus")
	require.NoError(t, err)
	assert.Equal(t, "Foo", out.Title())

	jpg, err := afero.ReadFile(fs, "/music/track.jpg")
	require.NoError(t, err)
	assert.Equal(t, cover, jpg)

	// Source untouched
	exists, err := afero.Exists(fs, "/music/track.flac")
	require.NoError(t, err)
	assert.True(t, exists)

	assertNoPartials(t, fs, "/music")
	mockTr.AssertExpectations(t)
}

func TestRun_FailureDoesNotStopTraversal(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/music/a.flac", testutil.FLAC(map[string]string{"TITLE": "A"}, nil), 0644))
	require.NoError(t, afero.WriteFile(fs, "/music/b.flac", testutil.FLAC(map[string]string{"TITLE": "B"}, nil), 0644))

	mockTr := new(MockTranscoder)
	mockTr.On("Transcode", ctx, "/music/a.flac", mock.Anything, mock.Anything).
		Run(writesOutput(fs, []byte("half written"))).
		Return(errors.New("exit status 1"))
	mockTr.On("Transcode", ctx, "/music/b.flac", mock.Anything, mock.Anything).
		Run(writesOutput(fs, testutil.FLAC(map[string]string{"TITLE": "B"}, nil))).
		Return(nil)

	stats, err := newTestService(fs, mockTr, nil, testOptions()).Run(ctx, "/music")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Converted)
	assert.Equal(t, 1, stats.Failed)
	require.Len(t, stats.Failures, 1)
	assert.Equal(t, "/music/a.flac", stats.Failures[0].Path)
	assert.True(t, apperrors.Is(stats.Failures[0].Err, apperrors.ErrCodeTranscode))

	// A failed file never gets a twin
	exists, err := afero.Exists(fs, "/music/a.opus")
	require.NoError(t, err)
	assert.False(t, exists)
	exists, err = afero.Exists(fs, "/music/b.opus")
	require.NoError(t, err)
	assert.True(t, exists)

	assertNoPartials(t, fs, "/music")
	mockTr.AssertExpectations(t)
}

func TestRun_IdempotentSkip(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/music/track.flac", testutil.FLAC(map[string]string{"TITLE": "Foo"}, nil), 0644))
	output := testutil.FLAC(map[string]string{"TITLE": "Foo"}, nil)

	mockTr := new(MockTranscoder)
	mockTr.On("Transcode", ctx, "/music/track.flac", mock.Anything, mock.Anything).
		Run(writesOutput(fs, output)).
		Return(nil).Once()

	svc := newTestService(fs, mockTr, nil, testOptions())

	first, err := svc.Run(ctx, "/music")
	require.NoError(t, err)
	assert.Equal(t, 1, first.Converted)

	second, err := svc.Run(ctx, "/music")
	require.NoError(t, err)
	assert.Equal(t, 0, second.Converted)
	assert.Equal(t, 1, second.Skipped)
	assert.Equal(t, 0, second.Failed)

	data, err := afero.ReadFile(fs, "/music/track.opus")
	require.NoError(t, err)
	assert.Equal(t, output, data)

	entries, err := afero.ReadDir(fs, "/music")
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no duplicate or renamed outputs")
	mockTr.AssertNumberOfCalls(t, "Transcode", 1)
}

func TestRun_OverwriteReplacesTarget(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/music/track.flac", testutil.FLAC(map[string]string{"TITLE": "Foo"}, nil), 0644))
	require.NoError(t, afero.WriteFile(fs, "/music/track.opus", []byte("stale"), 0644))

	fresh := testutil.FLAC(map[string]string{"TITLE": "Foo"}, nil)
	mockTr := new(MockTranscoder)
	mockTr.On("Transcode", ctx, "/music/track.flac", mock.Anything, mock.Anything).
		Run(writesOutput(fs, fresh)).
		Return(nil)

	opts := testOptions()
	opts.Overwrite = true
	stats, err := newTestService(fs, mockTr, nil, opts).Run(ctx, "/music")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Converted)

	data, err := afero.ReadFile(fs, "/music/track.opus")
	require.NoError(t, err)
	assert.Equal(t, fresh, data)
}

func TestConvertFile_TagMismatchFailsVerification(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/music/track.flac",
		testutil.FLAC(map[string]string{"TITLE": "Foo", "ALBUM": "Bar"}, nil), 0644))

	mockTr := new(MockTranscoder)
	mockTr.On("Transcode", ctx, "/music/track.flac", mock.Anything, mock.Anything).
		Run(writesOutput(fs, testutil.FLAC(map[string]string{"TITLE": "Wrong"}, nil))).
		Return(nil)

	res := newTestService(fs, mockTr, nil, testOptions()).ConvertFile(ctx, "/music/track.flac")
	assert.Equal(t, models.StatusFailed, res.Status)
	assert.True(t, apperrors.Is(res.Err, apperrors.ErrCodeVerify))
	assert.Contains(t, res.Err.Error(), "album missing")

	exists, err := afero.Exists(fs, "/music/track.opus")
	require.NoError(t, err)
	assert.False(t, exists)
	assertNoPartials(t, fs, "/music")
}

func TestConvertFile_MultiValuedTags(t *testing.T) {
	source := []string{"TITLE=Foo", "ARTIST=A", "ARTIST=B", "ALBUMARTIST=Various", "TRACKNUMBER=3"}

	tests := []struct {
		name       string
		output     []string
		wantStatus models.FileStatus
		wantErr    string
	}{
		{
			name:       "values joined by the encoder",
			output:     []string{"TITLE=Foo", "ARTIST=A;B", "ALBUMARTIST=Various", "TRACKNUMBER=3", "ENCODER=Lavf"},
			wantStatus: models.StatusConverted,
		},
		{
			name:       "values kept repeated",
			output:     []string{"TITLE=Foo", "ARTIST=A", "ARTIST=B", "album_artist=Various", "track=3"},
			wantStatus: models.StatusConverted,
		},
		{
			name:       "one value lost",
			output:     []string{"TITLE=Foo", "ARTIST=B", "ALBUMARTIST=Various", "TRACKNUMBER=3"},
			wantStatus: models.StatusFailed,
			wantErr:    `artist="B", want "A;B"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			fs := afero.NewMemMapFs()
			require.NoError(t, afero.WriteFile(fs, "/music/track.flac", testutil.FLACComments(source, nil), 0644))

			mockTr := new(MockTranscoder)
			mockTr.On("Transcode", ctx, "/music/track.flac", mock.Anything, mock.Anything).
				Run(writesOutput(fs, testutil.OggOpus(tt.output))).
				Return(nil)

			res := newTestService(fs, mockTr, nil, testOptions()).ConvertFile(ctx, "/music/track.flac")
			assert.Equal(t, tt.wantStatus, res.Status, "err: %v", res.Err)
			exists, err := afero.Exists(fs, "/music/track.opus")
			require.NoError(t, err)
			if tt.wantErr != "" {
				require.Error(t, res.Err)
				assert.True(t, apperrors.Is(res.Err, apperrors.ErrCodeVerify))
				assert.Contains(t, res.Err.Error(), tt.wantErr)
				assert.False(t, exists)
			} else {
				assert.True(t, exists)
			}
			assertNoPartials(t, fs, "/music")
		})
	}
}

func TestConvertFile_WrongContainerRejected(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/music/track.flac", testutil.FLAC(map[string]string{"TITLE": "Foo"}, nil), 0644))

	mockTr := new(MockTranscoder)
	mockPr := new(MockProber)
	wrongContainer := ffmpeg.NewProcessingError("metadata_validation", "/music/track.flac",
		fmt.Errorf("%w: %s", ffmpeg.ErrInvalidAudioFile, "mp3"), "")
	mockPr.On("ValidateAudioFile", ctx, "/music/track.flac", []string{"flac"}).Return(nil, wrongContainer)

	opts := testOptions()
	opts.ProbeSource = true
	res := newTestService(fs, mockTr, mockPr, opts).ConvertFile(ctx, "/music/track.flac")

	assert.Equal(t, models.StatusFailed, res.Status)
	assert.True(t, apperrors.Is(res.Err, apperrors.ErrCodeSourceUnreadable))
	assert.ErrorIs(t, res.Err, ffmpeg.ErrInvalidAudioFile)
	mockTr.AssertNotCalled(t, "Transcode", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	mockPr.AssertExpectations(t)
}

func TestConvertFile_AnySourceFormat(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	flac := testutil.FLAC(map[string]string{"TITLE": "Foo"}, nil)
	require.NoError(t, afero.WriteFile(fs, "/music/track.flac", flac, 0644))

	mockTr := new(MockTranscoder)
	mockTr.On("Transcode", ctx, "/music/track.flac", mock.Anything, mock.Anything).
		Run(writesOutput(fs, flac)).
		Return(nil)
	mockPr := new(MockProber)
	mockPr.On("ValidateAudioFile", ctx, "/music/track.flac", []string(nil)).
		Return(&ffmpeg.AudioMetadata{Duration: 3}, nil)

	opts := testOptions()
	opts.ProbeSource = true
	opts.SourceFormat = ""
	res := newTestService(fs, mockTr, mockPr, opts).ConvertFile(ctx, "/music/track.flac")

	assert.Equal(t, models.StatusConverted, res.Status, "err: %v", res.Err)
	mockPr.AssertExpectations(t)
}

func TestConvertFile_VerificationDisabled(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/music/track.flac", testutil.FLAC(map[string]string{"TITLE": "Foo"}, nil), 0644))

	mockTr := new(MockTranscoder)
	mockTr.On("Transcode", ctx, "/music/track.flac", mock.Anything, mock.Anything).
		Run(writesOutput(fs, []byte("opaque encoder output"))).
		Return(nil)

	opts := testOptions()
	opts.VerifyTags = false
	res := newTestService(fs, mockTr, nil, opts).ConvertFile(ctx, "/music/track.flac")
	assert.Equal(t, models.StatusConverted, res.Status)
	assert.Equal(t, "/music/track.opus", res.Target)
}

func TestConvertFile_DurationCheck(t *testing.T) {
	tests := []struct {
		name       string
		outSeconds float64
		wantStatus models.FileStatus
	}{
		{name: "within tolerance", outSeconds: 10.4, wantStatus: models.StatusConverted},
		{name: "truncated output", outSeconds: 5, wantStatus: models.StatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			fs := afero.NewMemMapFs()
			flac := testutil.FLAC(map[string]string{"TITLE": "Foo"}, nil)
			require.NoError(t, afero.WriteFile(fs, "/music/track.flac", flac, 0644))

			mockTr := new(MockTranscoder)
			mockTr.On("Transcode", ctx, "/music/track.flac", mock.Anything, mock.Anything).
				Run(writesOutput(fs, flac)).
				Return(nil)

			mockPr := new(MockProber)
			mockPr.On("ValidateAudioFile", ctx, "/music/track.flac", []string{"flac"}).
				Return(&ffmpeg.AudioMetadata{Duration: 10, Format: "flac"}, nil)
			mockPr.On("GetMetadata", ctx, "/music/.track.test-id.opus.part").
				Return(&ffmpeg.AudioMetadata{Duration: tt.outSeconds}, nil)

			opts := testOptions()
			opts.ProbeSource = true
			opts.VerifyDuration = true
			res := newTestService(fs, mockTr, mockPr, opts).ConvertFile(ctx, "/music/track.flac")

			assert.Equal(t, tt.wantStatus, res.Status)
			if tt.wantStatus == models.StatusFailed {
				assert.True(t, apperrors.Is(res.Err, apperrors.ErrCodeVerify))
			}
			mockPr.AssertExpectations(t)
		})
	}
}

func TestConvertFile_UnreadableSource(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/music/track.flac", []byte("not audio"), 0644))

	mockTr := new(MockTranscoder)
	mockPr := new(MockProber)
	mockPr.On("ValidateAudioFile", ctx, "/music/track.flac", []string{"flac"}).
		Return(nil, ffmpeg.NewProcessingError("metadata_validation", "/music/track.flac", ffmpeg.ErrInvalidAudioFile, ""))

	opts := testOptions()
	opts.ProbeSource = true
	res := newTestService(fs, mockTr, mockPr, opts).ConvertFile(ctx, "/music/track.flac")

	assert.Equal(t, models.StatusFailed, res.Status)
	assert.True(t, apperrors.Is(res.Err, apperrors.ErrCodeSourceUnreadable))
	assert.ErrorIs(t, res.Err, ffmpeg.ErrInvalidAudioFile)
	mockTr.AssertNotCalled(t, "Transcode", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestConvertFile_SiblingCover(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/music/track.flac", testutil.FLAC(map[string]string{"TITLE": "Foo"}, nil), 0644))
	require.NoError(t, afero.WriteFile(fs, "/music/cover.png", testutil.PNG(32, 32), 0644))

	mockTr := new(MockTranscoder)
	mockTr.On("Transcode", ctx, "/music/track.flac", mock.Anything, mock.Anything).
		Run(writesOutput(fs, testutil.FLAC(map[string]string{"TITLE": "Foo"}, nil))).
		Return(nil)

	res := newTestService(fs, mockTr, nil, testOptions()).ConvertFile(ctx, "/music/track.flac")
	require.Equal(t, models.StatusConverted, res.Status, "err: %v", res.Err)
	assert.Equal(t, "/music/track.jpg", res.CoverPath)

	data, err := afero.ReadFile(fs, "/music/track.jpg")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xD8}, data[:2], "cover written as JPEG")
}

func TestConvertFile_BrokenCoverDoesNotFailFile(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/music/track.flac", testutil.FLAC(map[string]string{"TITLE": "Foo"}, nil), 0644))
	require.NoError(t, afero.WriteFile(fs, "/music/cover.jpg", []byte("not an image"), 0644))

	mockTr := new(MockTranscoder)
	noPicture := mock.MatchedBy(func(o ffmpeg.TranscodeOptions) bool {
		_, ok := o.Metadata[pictureMetadataKey]
		return !ok
	})
	mockTr.On("Transcode", ctx, "/music/track.flac", mock.Anything, noPicture).
		Run(writesOutput(fs, testutil.FLAC(map[string]string{"TITLE": "Foo"}, nil))).
		Return(nil)

	res := newTestService(fs, mockTr, nil, testOptions()).ConvertFile(ctx, "/music/track.flac")
	assert.Equal(t, models.StatusConverted, res.Status)
	assert.Empty(t, res.CoverPath)
	mockTr.AssertExpectations(t)
}

func TestRun_DryRun(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/music/track.flac", testutil.FLAC(map[string]string{"TITLE": "Foo"}, nil), 0644))
	require.NoError(t, afero.WriteFile(fs, "/music/._track.flac", []byte("appledouble"), 0644))

	mockTr := new(MockTranscoder)
	opts := testOptions()
	opts.DryRun = true

	stats, err := newTestService(fs, mockTr, nil, opts).Run(ctx, "/music")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.DryRun)

	entries, err := afero.ReadDir(fs, "/music")
	require.NoError(t, err)
	assert.Len(t, entries, 2, "dry run writes nothing")
	mockTr.AssertNotCalled(t, "Transcode", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRun_MissingRoot(t *testing.T) {
	svc := newTestService(afero.NewMemMapFs(), new(MockTranscoder), nil, testOptions())

	stats, err := svc.Run(context.Background(), "/nowhere")
	assert.Nil(t, stats)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeNotFound))
}

func TestRun_CancelledContext(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/music/track.flac", testutil.FLAC(nil, nil), 0644))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	mockTr := new(MockTranscoder)
	stats, err := newTestService(fs, mockTr, nil, testOptions()).Run(ctx, "/music")
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, stats)
	assert.Equal(t, 0, stats.Total)
	mockTr.AssertNotCalled(t, "Transcode", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestNewOptions_FromDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	cfg, err := config.Load("")
	require.NoError(t, err)

	opts := NewOptions(cfg)
	assert.Equal(t, ".flac", opts.SourceExt)
	assert.Equal(t, ".opus", opts.TargetExt)
	assert.Equal(t, ffmpeg.DefaultTranscodeOptions(), opts.Transcode)
	assert.Equal(t, "flac", opts.SourceFormat)
	assert.True(t, opts.VerifyTags)
	assert.True(t, opts.EmbedCover)
	assert.True(t, opts.ExtractCover)
	assert.False(t, opts.Overwrite)
	assert.False(t, opts.DryRun)
}
