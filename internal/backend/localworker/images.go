package localworker

// sorterImages maps a sorter name to the worker image that runs it. Each
// sorter ships in its own image since the underlying algorithms carry
// conflicting native dependencies (MATLAB runtimes, CUDA versions).
var sorterImages = map[string]string{
	"kilosort2":     "ghcr.io/catalystneuro/si-sorting-ks2:latest",
	"kilosort25":    "ghcr.io/catalystneuro/si-sorting-ks25:latest",
	"kilosort3":     "ghcr.io/catalystneuro/si-sorting-ks3:latest",
	"ironclust":     "ghcr.io/catalystneuro/si-sorting-ironclust:latest",
	"spykingcircus": "ghcr.io/catalystneuro/si-sorting-spyking-circus:latest",
}

// ImageForSorter returns the worker image for a sorter name.
func ImageForSorter(sorter string) (string, bool) {
	image, ok := sorterImages[sorter]
	return image, ok
}
