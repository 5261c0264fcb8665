package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"os"

	"github.com/rotisserie/eris"
	"github.com/schollz/progressbar/v3"
)

func progressBar(length int64, desc string) *progressbar.ProgressBar {
	if os.Getenv("CI") == "true" {
		// progress bars just clutter the CI log
		return progressbar.NewOptions64(length, progressbar.OptionSetVisibility(false))
	}

	return progressbar.DefaultBytes(length, desc)
}

// download streams the given URL into dest and returns the hex-encoded
// sha256 digest of the downloaded bytes.
func download(ctx context.Context, client *http.Client, url string, dest io.Writer) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", eris.Wrapf(err, "failed to build request for %s", url)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", eris.Wrapf(err, "failed to start download for %s", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", eris.Errorf("download of %s failed with status %s", url, resp.Status)
	}

	hash := sha256.New()
	bar := progressBar(resp.ContentLength, "     download")
	defer bar.Finish()

	_, err = io.Copy(io.MultiWriter(dest, hash, bar), resp.Body)
	if err != nil {
		return "", eris.Wrapf(err, "failed during download of %s", url)
	}

	return hex.EncodeToString(hash.Sum(nil)), nil
}
