package fetch

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/rotisserie/eris"

	"github.com/logmark/build-tools/pkg"
)

// Options controls a fetch run.
type Options struct {
	// Update accepts mismatched checksums and writes the new digests back
	// into DEPS.yml instead of failing.
	Update bool
}

// Run processes every dependency in <root>/DEPS.yml: download, verify,
// extract, mark binaries executable and record a stamp. Deps whose stamp
// matches and whose destination exists are skipped.
func Run(ctx context.Context, root string, opts Options) error {
	cfgPath := filepath.Join(root, "DEPS.yml")
	cfg, cfgText, err := LoadConfig(cfgPath)
	if err != nil {
		return err
	}

	stamps, err := LoadStamps(root)
	if err != nil {
		return err
	}

	vars := DefaultVars()
	for name, value := range cfg.Vars {
		vars[name] = value
	}

	client := &http.Client{Timeout: 30 * time.Minute}
	changes := map[string]string{}

	for _, name := range cfg.DepNames() {
		spec := cfg.Deps[name]

		// conditions are evaluated even during --update runs because Eval
		// also resolves the URL placeholders
		skip := !spec.Eval(vars)
		if skip && !opts.Update {
			continue
		}

		destPath := filepath.Join(root, spec.Dest)
		destInfo, err := os.Stat(destPath)
		destExists := err == nil

		if stamp, ok := stamps[name]; ok && stamp == spec.StampToken() && destExists {
			continue
		}

		pkg.PrintSubtask(name + ":  " + spec.URL)
		if spec.Sha256 == "" && !opts.Update {
			return eris.Errorf("dependency %s doesn't have a checksum", name)
		}

		digest, err := fetchOne(ctx, client, spec, destPath, destExists, destInfo, skip)
		if err != nil {
			return err
		}

		if digest != spec.Sha256 {
			if !opts.Update {
				return eris.Errorf("checksum mismatch for %s", name)
			}

			fmt.Println("      updating checksum")
			changes[name] = digest
		}

		if !skip {
			stamps[name] = spec.StampToken()
		}
	}

	if opts.Update && len(changes) > 0 {
		pkg.PrintTask("Updating DEPS.yml")
		for name, digest := range changes {
			cfgText, err = UpdateChecksum(cfgText, name, cfg.Deps[name].Sha256, digest)
			if err != nil {
				return err
			}
		}

		err = os.WriteFile(cfgPath, []byte(cfgText), 0660)
		if err != nil {
			return eris.Wrapf(err, "failed to write %s", cfgPath)
		}
	}

	return SaveStamps(root, stamps)
}

// fetchOne downloads a single dep into a temp file and, unless the dep is
// skipped for this platform, replaces the destination with the extracted
// archive contents. Returns the archive's digest.
func fetchOne(ctx context.Context, client *http.Client, spec DepSpec, destPath string, destExists bool, destInfo os.FileInfo, skip bool) (string, error) {
	tmp, err := os.CreateTemp("", "deps_dl")
	if err != nil {
		return "", eris.Wrap(err, "failed to create download temp file")
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	digest, err := download(ctx, client, spec.URL, tmp)
	if err != nil {
		return "", err
	}

	if skip {
		// --update only needed the digest
		return digest, nil
	}

	if destExists {
		pkg.PrintSubtask(fmt.Sprintf("Remove %s", destPath))
		if destInfo.IsDir() {
			err = os.RemoveAll(destPath)
		} else {
			err = os.Remove(destPath)
		}
		if err != nil {
			return "", eris.Wrapf(err, "failed to remove %s", destPath)
		}
	}

	extract, err := getExtractor(spec.URL)
	if err != nil {
		return "", err
	}

	_, err = tmp.Seek(0, 0)
	if err != nil {
		return "", eris.Wrap(err, "failed to rewind download")
	}

	stat, err := tmp.Stat()
	if err != nil {
		return "", eris.Wrap(err, "failed to stat download")
	}

	bar := progressBar(stat.Size(), "      extract")
	err = extract(tmp, bar, destPath, spec)
	bar.Finish()
	if err != nil {
		return "", err
	}

	if runtime.GOOS != "windows" {
		// .zip files don't carry permissions so binaries from them have to
		// be marked executable by hand
		for _, binPath := range spec.MarkExec {
			binPath = filepath.Join(destPath, binPath)
			fi, err := os.Stat(binPath)
			if err != nil {
				return "", eris.Wrapf(err, "failed to read permissions for %s", binPath)
			}

			err = os.Chmod(binPath, fi.Mode()|0700)
			if err != nil {
				return "", eris.Wrapf(err, "failed to mark %s as executable", binPath)
			}
		}
	}

	return digest, nil
}
