package media

import (
	"fmt"
	"sync"

	"media-migrator/internal/logging"

	"github.com/davidbyttow/govips/v2/vips"
)

// maxVipsCoord is libvips' largest image dimension.
const maxVipsCoord = 10_000_000

var (
	vipsInitialized bool
	vipsInitMutex   sync.Mutex
	vipsAvailable   bool
)

// InitVips starts libvips once and routes its log output through logging
// at a verbosity matching LOG_LEVEL.
func InitVips() error {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()

	if vipsInitialized {
		return nil
	}

	vips.LoggingSettings(vipsLogHandler, vipsVerbosity())

	// Batch workers already run in parallel, so each vips operation stays
	// single-threaded.
	vips.Startup(&vips.Config{
		ConcurrencyLevel: 1,
		MaxCacheMem:      50 * 1024 * 1024,
		MaxCacheSize:     100,
		ReportLeaks:      false,
		CacheTrace:       false,
		CollectStats:     false,
	})

	vipsInitialized = true
	vipsAvailable = true
	log.Info("libvips initialized (version: %s)", vips.Version)
	return nil
}

// ShutdownVips cleans up libvips resources
func ShutdownVips() {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()

	if vipsInitialized {
		vips.Shutdown()
		vipsInitialized = false
		vipsAvailable = false
		log.Info("libvips shutdown complete")
	}
}

// vipsVerbosity maps LOG_LEVEL onto libvips' own filter. govips drops any
// message less severe than the returned level.
func vipsVerbosity() vips.LogLevel {
	switch logging.GetLevel() {
	case logging.LevelDebug:
		return vips.LogLevelInfo
	case logging.LevelInfo:
		return vips.LogLevelWarning
	default:
		return vips.LogLevelCritical
	}
}

func vipsLogHandler(domain string, level vips.LogLevel, msg string) {
	switch level {
	case vips.LogLevelError, vips.LogLevelCritical:
		log.Error("[%s] %s", domain, msg)
	case vips.LogLevelWarning:
		log.Warn("[%s] %s", domain, msg)
	default:
		log.Debug("[%s] %s", domain, msg)
	}
}

// ProcessVips is the libvips equivalent of Process. libvips shrinks JPEGs
// during decode, so large originals never materialize at full size.
func ProcessVips(data []byte, opts Options) (*Result, error) {
	if !IsVipsAvailable() {
		return nil, fmt.Errorf("libvips not available")
	}
	opts = opts.Normalize()

	if err := checkPixels(data); err != nil {
		return nil, err
	}

	ref, err := vips.NewImageFromBuffer(data)
	if err != nil {
		return nil, fmt.Errorf("vips failed to load image: %w", err)
	}
	defer ref.Close()

	if err := ref.AutoRotate(); err != nil {
		return nil, fmt.Errorf("vips auto-rotate failed: %w", err)
	}

	res := &Result{
		OriginalWidth:  ref.Width(),
		OriginalHeight: ref.Height(),
		OriginalSize:   int64(len(data)),
	}

	if res.OriginalWidth > opts.MaxWidth {
		// Height is left unconstrained so only the width cap applies.
		if err := ref.Thumbnail(opts.MaxWidth, maxVipsCoord, vips.InterestingNone); err != nil {
			return nil, fmt.Errorf("vips resize failed: %w", err)
		}
	}

	if ref.HasAlpha() {
		if err := ref.Flatten(&vips.Color{R: 255, G: 255, B: 255}); err != nil {
			return nil, fmt.Errorf("vips flatten failed: %w", err)
		}
	}

	buf, _, err := ref.ExportJpeg(&vips.JpegExportParams{
		Quality:        opts.Quality,
		StripMetadata:  true,
		OptimizeCoding: true,
		Interlace:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("vips export failed: %w", err)
	}

	res.Data = buf
	res.Width = ref.Width()
	res.Height = ref.Height()
	res.Size = int64(len(buf))

	log.Debug("Vips transformed %s -> %s (%d -> %d bytes)",
		res.OriginalDimensions(), res.ProcessedDimensions(), res.OriginalSize, res.Size)
	return res, nil
}

// IsVipsAvailable returns whether libvips is initialized and available
func IsVipsAvailable() bool {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()
	return vipsAvailable
}
