package photom

import(
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obsworks/photocal/pkg/catalogue"
	"github.com/obsworks/photocal/pkg/ccd"
)

func TestExtractSequence(t *testing.T) {
	p := newTestPipeline(t)
	img := newTestImage(512, 512, 100)
	q := &fakeQuerier{stars: injectField(img, 5)}
	p.Catalogue = q

	seq, err := p.ExtractSequence(img, "PS1V3OBJECTS", 14, 20.5)
	require.NoError(t, err)

	assert.Equal(t, "r", seq.Band)
	assert.Len(t, seq.Stars, 5)
	assert.InEpsilon(t, testFWHM, seq.FWHMArcsec, 0.05)

	// The representative FWHM lands in the header for later photometry.
	v, err := img.Header.Float(ccd.KeyFWHM)
	require.NoError(t, err)
	assert.InEpsilon(t, testFWHM, v, 0.05)

	for _, s := range seq.Stars {
		assert.True(t, s.Fit.Detected)
		assert.Greater(t, s.Fit.Ellipticity, p.Settings.Sequence.MinEllipticity)
	}
}

func TestExtractSequenceUsesCache(t *testing.T) {
	p := newTestPipeline(t)
	img := newTestImage(512, 512, 100)
	q := &fakeQuerier{stars: injectField(img, 5)}
	p.Catalogue = q

	_, err := p.ExtractSequence(img, "PS1V3OBJECTS", 14, 20.5)
	require.NoError(t, err)
	require.Equal(t, 1, q.calls)

	// Same image, same parameters: the on-disk result short-circuits
	// the network.
	_, err = p.ExtractSequence(img, "PS1V3OBJECTS", 14, 20.5)
	require.NoError(t, err)
	assert.Equal(t, 1, q.calls)

	// A different magnitude range is a different cache key.
	_, err = p.ExtractSequence(img, "PS1V3OBJECTS", 14, 19.5)
	require.NoError(t, err)
	assert.Equal(t, 2, q.calls)
}

func TestExtractSequencePersistsSequence(t *testing.T) {
	p := newTestPipeline(t)
	img := newTestImage(512, 512, 100)
	p.Catalogue = &fakeQuerier{stars: injectField(img, 5)}

	seq, err := p.ExtractSequence(img, "PS1V3OBJECTS", 14, 20.5)
	require.NoError(t, err)

	entries, err := os.ReadDir(p.CacheDir)
	require.NoError(t, err)
	names := []string{}
	for _, e := range entries {
		names = append(names, e.Name())
	}
	require.Len(t, names, 2, "raw query cache plus detected sequence: %v", names)

	var seqPath string
	for _, e := range entries {
		if e.Name()[:8] == "detected" {
			seqPath = p.CacheDir + "/" + e.Name()
		}
	}
	require.NotEmpty(t, seqPath)

	rows, err := catalogue.LoadSequence(seqPath)
	require.NoError(t, err)
	assert.Len(t, rows, len(seq.Stars))
}

func TestExtractSequenceMissingBand(t *testing.T) {
	p := newTestPipeline(t)
	img := newTestImage(512, 512, 100)

	stars := injectField(img, 5)
	for i := range stars {
		delete(stars[i].Mag, "r") // catalogue covers g only
	}
	p.Catalogue = &fakeQuerier{stars: stars}

	_, err := p.ExtractSequence(img, "PS1V3OBJECTS", 14, 20.5)
	var missing MissingBandError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "r", missing.Band)
}

func TestExtractSequenceNoStarsInField(t *testing.T) {
	p := newTestPipeline(t)
	img := newTestImage(512, 512, 100)

	// A valid catalogue answer, but every star is a degree off-frame.
	p.Catalogue = &fakeQuerier{stars: []catalogue.Star{
		{ID: 1, RA: 151.0, Dec: 21.0, Mag: map[string]float64{"r": 15.0}},
		{ID: 2, RA: 151.1, Dec: 21.1, Mag: map[string]float64{"r": 16.0}},
	}}

	_, err := p.ExtractSequence(img, "PS1V3OBJECTS", 14, 20.5)
	assert.ErrorIs(t, err, ErrNoStarsLeft)
}

func TestExtractSequenceTooFewStars(t *testing.T) {
	p := newTestPipeline(t)
	img := newTestImage(512, 512, 100)
	p.Catalogue = &fakeQuerier{stars: injectField(img, 2)}

	_, err := p.ExtractSequence(img, "PS1V3OBJECTS", 14, 20.5)
	var tooFew TooFewStarsError
	require.True(t, errors.As(err, &tooFew))
	assert.Equal(t, 2, tooFew.Count)
	assert.Equal(t, 3, tooFew.Need)
}

func TestExtractSequenceQueryFailure(t *testing.T) {
	p := newTestPipeline(t)
	img := newTestImage(512, 512, 100)
	p.Catalogue = &fakeQuerier{err: catalogue.ErrNoSources}

	_, err := p.ExtractSequence(img, "PS1V3OBJECTS", 14, 20.5)
	assert.ErrorIs(t, err, catalogue.ErrNoSources)
}

func TestMaskCandidatesMagnitudeMonotonicity(t *testing.T) {
	p := newTestPipeline(t)
	img := newTestImage(512, 512, 100)
	stars := injectField(img, 5) // r mags 15.0 .. 17.0

	loose := p.maskCandidates(img, stars, "r", testPixScale, 14, 20.5)
	tight := p.maskCandidates(img, stars, "r", testPixScale, 15.2, 16.8)

	require.Len(t, loose, 5)
	require.Len(t, tight, 3)
	ids := map[int64]bool{}
	for _, s := range loose {
		ids[s.ID] = true
	}
	for _, s := range tight {
		assert.True(t, ids[s.ID], "tightening the range must only remove stars")
	}
}

func TestMaskCandidates(t *testing.T) {
	p := newTestPipeline(t)
	img := newTestImage(512, 512, 100)

	mkStar := func(id int64, x, y, rMag float64) catalogue.Star {
		ra, dec := img.WCS.PixToSky(x, y)
		return catalogue.Star{ID: id, RA: ra, Dec: dec, Mag: map[string]float64{"r": rMag}}
	}

	stars := []catalogue.Star{
		mkStar(1, 256, 256, 16.0), // good
		mkStar(2, 10, 256, 16.0),  // inside the border margin
		mkStar(3, 400, 400, 16.0), // crowded pair, 5" apart
		mkStar(4, 400, 416.7, 16.0),
		mkStar(5, 100, 400, 13.0), // brighter than the range allows
	}

	out := p.maskCandidates(img, stars, "r", testPixScale, 14, 20.5)
	require.Len(t, out, 1)
	assert.Equal(t, int64(1), out[0].ID)
	assert.InDelta(t, 256.0, out[0].X, 1e-6)
	assert.InDelta(t, 256.0, out[0].Y, 1e-6)
}
