package cmd

import (
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"github.com/relex/gotils/logger"
	"github.com/relex/slog-relay/base"
	"github.com/relex/slog-relay/buffer"
	"github.com/relex/slog-relay/buffer/sqlitebuffer"
	"github.com/relex/slog-relay/defs"
)

const recordPreviewLength = 60

type bufferCommandState struct {
	Root     string `help:"Root dir of buffer files, empty for default location"`
	Identity string `help:"Identity of application, empty for this executable"`
	Limit    int    `help:"Max numbers of latest records to print by list, 0 for all"`
	Keep     int    `help:"Max numbers of latest records to keep by trim"`
}

var bufferCmd = bufferCommandState{
	Keep: defs.DispatchMaxStore,
}

func (cmd *bufferCommandState) runPathCommand(_ []string) {
	if err := cmd.printPath(os.Stdout); err != nil {
		logger.Fatal(err)
	}
}

func (cmd *bufferCommandState) runFilesCommand(_ []string) {
	if err := cmd.printFiles(os.Stdout); err != nil {
		logger.Fatal(err)
	}
}

func (cmd *bufferCommandState) runListCommand(_ []string) {
	if err := cmd.printRecords(os.Stdout); err != nil {
		logger.Fatal(err)
	}
}

func (cmd *bufferCommandState) runTrimCommand(_ []string) {
	if err := cmd.trim(os.Stdout); err != nil {
		logger.Fatal(err)
	}
}

func (cmd *bufferCommandState) factory() *buffer.StoreFactory {
	return buffer.NewStoreFactory(logger.Root(), buffer.FactoryOptions{
		RootPath: cmd.Root,
		Identity: cmd.Identity,
	})
}

func (cmd *bufferCommandState) printPath(out io.Writer) error {
	path, err := cmd.factory().ResolvePath()
	if err != nil {
		return err
	}
	fmt.Fprintln(out, path)
	if _, serr := os.Stat(path); serr != nil {
		fmt.Fprintln(out, "(not created)")
		return nil
	}
	if identity, xerr := buffer.ReadIdentityLabel(path); xerr == nil {
		fmt.Fprintf(out, "identity: %s\n", identity)
	}
	return nil
}

func (cmd *bufferCommandState) printFiles(out io.Writer) error {
	rootPath := cmd.Root
	if rootPath == "" {
		defaultRoot, err := buffer.DefaultRootPath()
		if err != nil {
			return err
		}
		rootPath = defaultRoot
	}
	for _, file := range buffer.ListFiles(logger.Root(), rootPath) {
		identity := file.Identity
		if identity == "" {
			identity = "-"
		}
		fmt.Fprintf(out, "%s\t%s\n", file.Path, identity)
	}
	return nil
}

func (cmd *bufferCommandState) printRecords(out io.Writer) error {
	store, err := cmd.openExisting()
	if err != nil {
		return err
	}
	defer store.Close()

	records, lerr := store.ListAll()
	if lerr != nil {
		return lerr
	}
	if cmd.Limit > 0 && len(records) > cmd.Limit {
		records = records[len(records)-cmd.Limit:]
	}
	for _, record := range records {
		fmt.Fprintf(out, "%d\t%s\t%d\t%s\n", record.ID, record.CreatedAt.Format("2006-01-02T15:04:05.000Z07:00"),
			len(record.Payload), previewRecord(record))
	}
	return nil
}

func (cmd *bufferCommandState) trim(out io.Writer) error {
	if cmd.Keep < 0 {
		return fmt.Errorf("invalid keep: %d", cmd.Keep)
	}
	store, err := cmd.openExisting()
	if err != nil {
		return err
	}
	defer store.Close()

	numTrimmed, terr := store.Trim(cmd.Keep)
	if terr != nil {
		return terr
	}
	fmt.Fprintf(out, "trimmed %d records\n", numTrimmed)
	return nil
}

func (cmd *bufferCommandState) openExisting() (base.BufferStore, error) {
	path, err := cmd.factory().ResolvePath()
	if err != nil {
		return nil, err
	}
	if _, serr := os.Stat(path); serr != nil {
		return nil, fmt.Errorf("no buffer: %w", serr)
	}
	return sqlitebuffer.Open(logger.Root(), path)
}

func previewRecord(record base.BufferedRecord) string {
	if utf8.RuneCountInString(record.Payload) <= recordPreviewLength {
		return record.Payload
	}
	return string([]rune(record.Payload)[:recordPreviewLength]) + "..."
}
