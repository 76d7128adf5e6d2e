package cohort

import (
	"fmt"
	"os"
	"strings"

	"github.com/okian/raceday/internal/domain/model"
	parquetbuffer "github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"
)

const parquetParallelism = 1

// parquetRow is the on-disk layout exported by the research pipeline. An
// empty or "all" gender denotes the all-athlete cohort.
type parquetRow struct {
	Distance string  `parquet:"name=distance, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Gender   string  `parquet:"name=gender, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	P25      float64 `parquet:"name=p25_sec, type=DOUBLE"`
	Median   float64 `parquet:"name=median_sec, type=DOUBLE"`
	P75      float64 `parquet:"name=p75_sec, type=DOUBLE"`
}

// LoadParquetFile reads a cohort table from a parquet file.
func LoadParquetFile(path, version string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cohort table %s: %w", path, err)
	}
	return LoadParquet(data, version)
}

// LoadParquet decodes a cohort table from parquet bytes.
func LoadParquet(data []byte, version string) (*Table, error) {
	fr := parquetbuffer.NewBufferFileFromBytes(data)
	pr, err := reader.NewParquetReader(fr, new(parquetRow), parquetParallelism)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTable, err)
	}
	defer pr.ReadStop()

	raw := make([]parquetRow, int(pr.GetNumRows()))
	if err := pr.Read(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTable, err)
	}

	rows := make([]Row, 0, len(raw))
	for _, r := range raw {
		d, err := model.ParseDistanceCategory(r.Distance)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidTable, err)
		}
		rows = append(rows, Row{
			Key:         Key{Distance: d, Gender: parseGender(r.Gender)},
			Breakpoints: Breakpoints{P25: r.P25, Median: r.Median, P75: r.P75},
		})
	}
	return NewTable(version, rows)
}

// WriteParquet encodes t in the layout LoadParquet reads.
func WriteParquet(t *Table) ([]byte, error) {
	fw := parquetbuffer.NewBufferFile()
	pw, err := writer.NewParquetWriter(fw, new(parquetRow), parquetParallelism)
	if err != nil {
		return nil, err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for _, r := range t.Rows() {
		row := parquetRow{
			Distance: string(r.Distance),
			Gender:   genderName(r.Gender),
			P25:      r.P25,
			Median:   r.Median,
			P75:      r.P75,
		}
		if err := pw.Write(row); err != nil {
			_ = pw.WriteStop()
			return nil, err
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, err
	}
	if err := fw.Close(); err != nil {
		return nil, err
	}
	return append([]byte(nil), fw.Bytes()...), nil
}

func parseGender(s string) model.Gender {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "m", "male":
		return model.GenderMale
	case "f", "female":
		return model.GenderFemale
	}
	return model.GenderUnknown
}
