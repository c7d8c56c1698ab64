package query

import (
	"fmt"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/oceanvis/mvq/decode"
	"github.com/oceanvis/mvq/mvq"
)

// Face describes one face of a partitioned dataset: its native dims and
// whether its X/Y axes are stored transposed relative to the other faces.
type Face struct {
	Dims       mvq.Point3d `toml:"dims"`
	Transposed bool        `toml:"transposed"`
}

// Dataset describes the geometry a query runs against: per-face dims, valid
// depth/time counts, and how (face, depth, time window) map to file names.
// Files group TimeGroup consecutive time steps; zero means one step per
// file.  Zero Depths or Times leaves that range unchecked.
type Dataset struct {
	Name      string `toml:"name"`
	Dir       string `toml:"dir"`
	Format    string `toml:"format"`
	TimeGroup int    `toml:"time_group"`
	Depths    int    `toml:"depths"`
	Times     int    `toml:"times"`
	Faces     []Face `toml:"face"`

	// NameFunc overrides Format for datasets whose naming is not
	// sprintf-shaped.
	NameFunc func(face, depth, timeBegin, timeEnd int) string `toml:"-"`
}

// timeWindow returns the [begin, end) time window holding the given step.
func (ds *Dataset) timeWindow(time int) (begin, end int) {
	group := ds.TimeGroup
	if group <= 0 {
		group = 1
	}
	begin = (time / group) * group
	return begin, begin + group
}

// FileName returns the file holding the given face, depth, and time step.
func (ds *Dataset) FileName(face, depth, time int) string {
	begin, end := ds.timeWindow(time)
	if ds.NameFunc != nil {
		return ds.NameFunc(face, depth, begin, end)
	}
	return fmt.Sprintf(ds.Format, face, depth, begin, end)
}

// Config aggregates everything a query service needs: the dataset geometry,
// session options, logging, and optional kafka activity publishing.
type Config struct {
	Dataset Dataset            `toml:"dataset"`
	Session decode.Options     `toml:"session"`
	Logging mvq.LogConfig      `toml:"logging"`
	Kafka   decode.KafkaConfig `toml:"kafka"`
}

// LoadConfig loads configuration from a TOML file.  An unset session dir
// defaults to the dataset dir; relative paths are converted in place to
// absolute paths against the TOML file's own directory.
func LoadConfig(filename string) (*Config, error) {
	if filename == "" {
		return nil, fmt.Errorf("no TOML configuration file provided")
	}
	var c Config
	if _, err := toml.DecodeFile(filename, &c); err != nil {
		return nil, fmt.Errorf("could not decode TOML config: %v", err)
	}
	if c.Session.Dir == "" {
		c.Session.Dir = c.Dataset.Dir
	}
	if err := c.convertPathsToAbsolute(filename); err != nil {
		return nil, err
	}
	return &c, nil
}

// Some settings in the TOML can be given as relative paths.  This function
// converts them in-place to absolute paths, assuming the given paths were
// relative to the TOML file's own directory.
func (c *Config) convertPathsToAbsolute(configPath string) error {
	var err error
	configDir := filepath.Dir(configPath)

	if c.Dataset.Dir != "" {
		if c.Dataset.Dir, err = convertToAbsolute(c.Dataset.Dir, configDir); err != nil {
			return fmt.Errorf("error converting dataset dir to absolute path: %v", err)
		}
	}
	if c.Session.Dir != "" {
		if c.Session.Dir, err = convertToAbsolute(c.Session.Dir, configDir); err != nil {
			return fmt.Errorf("error converting session dir to absolute path: %v", err)
		}
	}
	if c.Logging.Logfile != "" {
		if c.Logging.Logfile, err = convertToAbsolute(c.Logging.Logfile, configDir); err != nil {
			return fmt.Errorf("error converting logfile to absolute path: %v", err)
		}
	}
	return nil
}

func convertToAbsolute(path, dir string) (string, error) {
	if filepath.IsAbs(path) {
		return path, nil
	}
	return filepath.Abs(filepath.Join(dir, path))
}
