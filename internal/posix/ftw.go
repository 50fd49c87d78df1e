package posix

import (
	"errors"
	"os"

	"github.com/desertwitch/posixrt/internal/walker"
	"golang.org/x/sys/unix"
)

// nftw type flags.
const (
	FTW_F   = int(walker.F)   //nolint:revive,stylecheck
	FTW_D   = int(walker.D)   //nolint:revive,stylecheck
	FTW_DNR = int(walker.DNR) //nolint:revive,stylecheck
	FTW_NS  = int(walker.NS)  //nolint:revive,stylecheck
	FTW_SL  = int(walker.SL)  //nolint:revive,stylecheck
	FTW_DP  = int(walker.DP)  //nolint:revive,stylecheck
	FTW_SLN = int(walker.SLN) //nolint:revive,stylecheck
)

// nftw flags.
const (
	FTW_PHYS  = int(walker.Phys)  //nolint:revive,stylecheck
	FTW_MOUNT = int(walker.Mount) //nolint:revive,stylecheck
	FTW_CHDIR = int(walker.Chdir) //nolint:revive,stylecheck
	FTW_DEPTH = int(walker.Depth) //nolint:revive,stylecheck
)

// FTW_PRUNE is stored in [FTW.Quit] by a callback to skip the directory
// being visited.
const FTW_PRUNE = 1 //nolint:revive,stylecheck

// FTW is the per-visit information handed to an nftw callback.
type FTW struct {
	Base  int
	Level int
	Quit  int
}

// NftwFunc is an nftw callback. A nonzero return value ends the walk and
// becomes the return value of [Process.Nftw].
type NftwFunc func(path string, info os.FileInfo, typ int, ftw *FTW) int

type callbackResult int

func (r callbackResult) Error() string {
	return "nftw callback returned nonzero"
}

// Nftw walks the tree below path. An empty path stands for a null one.
func (p *Process) Nftw(path string, fn NftwFunc, depth int, flags int) int {
	if fn == nil {
		return p.fail(unix.EFAULT)
	}

	visit := func(path string, info os.FileInfo, kind walker.Kind, frame walker.Frame) error {
		ftw := &FTW{Base: frame.Base, Level: frame.Level}

		if rc := fn(path, info, int(kind), ftw); rc != 0 {
			return callbackResult(rc)
		}

		if ftw.Quit == FTW_PRUNE && (kind == walker.D || kind == walker.DP || kind == walker.DNR) {
			return walker.SkipDir
		}

		return nil
	}

	err := p.walker.Walk(p.ctx, path, visit, depth, walker.Flag(flags))
	if err != nil {
		var rc callbackResult
		if errors.As(err, &rc) {
			return int(rc)
		}

		return p.fail(err)
	}

	return 0
}
