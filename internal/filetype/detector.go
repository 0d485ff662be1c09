package filetype

import (
	"errors"
	"fmt"
	"os"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

const mimePDF = "application/pdf"

// ErrEmptyFile is returned for zero-length files; mimetype would call them text/plain.
var ErrEmptyFile = errors.New("file is empty")

// FileTypeInfo contains detected file type information
type FileTypeInfo struct {
	MIMEType  string
	Extension string
	Size      int64
	IsPDF     bool
}

// Detector checks files by magic bytes, never by name.
type Detector struct{}

// New creates a new file type detector
func New() *Detector {
	return &Detector{}
}

// Detect sniffs the file at filePath.
func (d *Detector) Detect(filePath string) (*FileTypeInfo, error) {
	st, err := os.Stat(filePath)
	if err != nil {
		return nil, err
	}
	if st.IsDir() {
		return nil, fmt.Errorf("%s is a directory", filePath)
	}
	if st.Size() == 0 {
		return nil, ErrEmptyFile
	}

	mtype, err := mimetype.DetectFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to detect file type: %w", err)
	}
	log.Debug().Str("mime", mtype.String()).Str("ext", mtype.Extension()).Str("file", filePath).Msg("detected file type")

	return &FileTypeInfo{
		MIMEType:  mtype.String(),
		Extension: mtype.Extension(),
		Size:      st.Size(),
		IsPDF:     mtype.Is(mimePDF),
	}, nil
}

// CheckPDF returns nil when filePath exists, is non-empty and starts like a PDF.
func (d *Detector) CheckPDF(filePath string) error {
	info, err := d.Detect(filePath)
	if err != nil {
		return err
	}
	if !info.IsPDF {
		return fmt.Errorf("not a PDF (detected %s)", info.MIMEType)
	}
	return nil
}
