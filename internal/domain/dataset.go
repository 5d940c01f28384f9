package domain

import (
	"time"

	"github.com/google/uuid"
)

type DatasetType string

const (
	DatasetIP     DatasetType = "ip"
	DatasetDomain DatasetType = "domain"
)

// datasetNamespace seeds Dataset IDs so a name always maps to the same ID.
var datasetNamespace = uuid.MustParse("6f1c3a52-8d0e-4b7a-9c41-2f5e7d8a9b30")

type Dataset struct {
	ID   uuid.UUID   `json:"id"`
	Type DatasetType `json:"type" validate:"required,oneof=ip domain"`
	Name string      `json:"name" validate:"required,alphanum_dash"`
	URL  string      `json:"url" validate:"required,url"`
}

// NewDataset returns a dataset whose ID is derived from its name.
func NewDataset(t DatasetType, name, url string) Dataset {
	return Dataset{
		ID:   DatasetID(name),
		Type: t,
		Name: name,
		URL:  url,
	}
}

func DatasetID(name string) uuid.UUID {
	return uuid.NewSHA1(datasetNamespace, []byte(name))
}

// FileName is the on-disk name the engine looks the dataset up by.
func (d Dataset) FileName() string {
	return d.Name + ".dat"
}

// DefaultDatasets are the files the default routing rules (geoip:cn, geosite:cn) need.
func DefaultDatasets() []Dataset {
	return []Dataset{
		NewDataset(DatasetIP, "geoip", "https://github.com/Loyalsoldier/v2ray-rules-dat/releases/latest/download/geoip.dat"),
		NewDataset(DatasetDomain, "geosite", "https://github.com/Loyalsoldier/v2ray-rules-dat/releases/latest/download/geosite.dat"),
	}
}

// RequiredDatasets must be on disk before the engine can load the default routing.
var RequiredDatasets = []string{"geoip", "geosite"}

type FetchResult struct {
	Dataset   Dataset
	Path      string
	Bytes     int64
	Error     error
	Duration  time.Duration
	Completed time.Time
}

func (r FetchResult) Status() string {
	if r.Error != nil {
		return "Failed"
	}
	return "Success"
}
