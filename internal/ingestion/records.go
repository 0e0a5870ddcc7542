package ingestion

import (
	"errors"

	"github.com/ThiagoRGoveia/stm-bigblue/internal/instrument"
	"github.com/ThiagoRGoveia/stm-bigblue/internal/models"
	"github.com/ThiagoRGoveia/stm-bigblue/internal/parser"
)

// experimentRecord derives the dedup key from the file name and parses the
// creation comment of the first scan.
func experimentRecord(file *instrument.File) (models.ExperimentMetadata, error) {
	timestamp, err := parser.DeriveCreationTimestamp(file.Name)
	if err != nil {
		return models.ExperimentMetadata{}, err
	}

	comment, err := parser.ParseComment(instrument.CreationComment(file.Info().Comment), file.Name)
	if err != nil {
		return models.ExperimentMetadata{}, err
	}

	return models.ExperimentMetadata{CreationTimestamp: timestamp, Comment: comment}, nil
}

func fileRecord(file *instrument.File, timestamp string) (models.FileRecord, error) {
	fileDate, err := parser.CanonicalFileDate(file.Info().Date)
	if err != nil {
		var appErr *models.AppError
		if errors.As(err, &appErr) {
			appErr.FileName = file.Name
		}
		return models.FileRecord{}, err
	}

	return models.FileRecord{
		CreationTimestamp: timestamp,
		FileName:          file.Name,
		FileDate:          fileDate,
		FileType:          file.Type(),
		FileLocation:      file.Location(),
	}, nil
}

func parent(file *instrument.File) models.MetadataParent {
	return models.MetadataParent{FileName: file.Name}
}

func topoRecord(file *instrument.File) models.TopoMetadata {
	info := file.Info()
	return models.TopoMetadata{
		MetadataParent: parent(file),
		VGap:           info.VGap,
		ISet:           info.Current,
		XRes:           info.XRes,
		YRes:           info.YRes,
		XInc:           info.XInc,
		YInc:           info.YInc,
		XYUnit:         info.UnitXY,
	}
}

func specRecord(file *instrument.File) models.SpecMetadata {
	info := file.Info()
	return models.SpecMetadata{
		MetadataParent: parent(file),
		VGap:           info.VGap,
		VStart:         info.VStart,
		ISet:           info.Current,
		VRes:           info.VRes,
		VInc:           info.VInc,
		VUnit:          info.UnitV,
		XOffset:        info.Offset[0],
		YOffset:        info.Offset[1],
	}
}

func citsRecord(file *instrument.File) models.CitsMetadata {
	info := file.Info()
	return models.CitsMetadata{
		MetadataParent: parent(file),
		VGap:           info.VGap,
		ISet:           info.Current,
		XRes:           info.XRes,
		YRes:           info.YRes,
		XInc:           info.XInc,
		YInc:           info.YInc,
		XYUnit:         info.UnitXY,
		VStart:         info.VStart,
		VRes:           info.VRes,
		VInc:           info.VInc,
		VUnit:          info.UnitV,
	}
}
