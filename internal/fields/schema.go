package fields

import (
	"github.com/miethe/deal-brain-sub014/internal/domain"
)

// DefaultSchema returns the built-in entity metadata for hardware listings.
// Deployments with custom entities supply their own schema; this one covers
// the standard PC/component catalog.
func DefaultSchema() domain.Schema {
	return domain.Schema{
		domain.RootEntity: {
			"title":       {Type: domain.FieldString},
			"device_type": {Type: domain.FieldEnum, Options: []string{"desktop", "laptop", "mini_pc", "server"}},
			"condition":   {Type: domain.FieldEnum, Options: []string{"new", "like_new", "refurbished", "used", "for_parts"}},
			"price":       {Type: domain.FieldNumber},
			"quantity":    {Type: domain.FieldNumber},
			"ram_gb":      {Type: domain.FieldNumber},
			"storage_gb":  {Type: domain.FieldNumber},
			"os_license":  {Type: domain.FieldBoolean},
			"listed_at":   {Type: domain.FieldDate},
		},
		"cpu": {
			"manufacturer":    {Type: domain.FieldEnum, Options: []string{"intel", "amd"}},
			"model":           {Type: domain.FieldString},
			"cores":           {Type: domain.FieldNumber},
			"threads":         {Type: domain.FieldNumber},
			"tdp_w":           {Type: domain.FieldNumber},
			"cpu_mark_single": {Type: domain.FieldNumber},
			"cpu_mark_multi":  {Type: domain.FieldNumber},
			"igpu":            {Type: domain.FieldBoolean},
			"release_year":    {Type: domain.FieldNumber},
		},
		"gpu": {
			"manufacturer": {Type: domain.FieldEnum, Options: []string{"nvidia", "amd", "intel"}},
			"model":        {Type: domain.FieldString},
			"vram_gb":      {Type: domain.FieldNumber},
			"gpu_mark":     {Type: domain.FieldNumber},
		},
		"ram_spec": {
			"ddr_generation": {Type: domain.FieldEnum, Options: []string{"ddr3", "ddr4", "ddr5"}},
			"speed_mhz":      {Type: domain.FieldNumber},
			"modules":        {Type: domain.FieldNumber},
			"ecc":            {Type: domain.FieldBoolean},
		},
		"storage": {
			"medium":      {Type: domain.FieldEnum, Options: []string{"hdd", "sata_ssd", "nvme"}},
			"capacity_gb": {Type: domain.FieldNumber},
		},
	}
}
