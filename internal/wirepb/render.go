package wirepb

import (
	"os"
	"path"

	"github.com/jhump/protoreflect/v2/protoprint"
)

// Render writes the gateway .proto file below outDir.
func Render(outDir string) error {
	fd, err := File()
	if err != nil {
		return err
	}
	fp := path.Join(outDir, fd.Path())
	if err := os.MkdirAll(path.Dir(fp), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(fp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	pp := protoprint.Printer{}
	return pp.PrintProtoFile(fd, f)
}
