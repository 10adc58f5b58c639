// Package clustering scores a predicted family assignment against ground truth.
package clustering

// Result holds averaged precision and recall in [0,1] and their harmonic mean
type Result struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	// Evaluated is the number of predicted elements that had a ground-truth label
	Evaluated int `json:"evaluated"`
	// Missing is the number of predicted elements absent from ground truth
	Missing int `json:"missing"`
}

// Percent returns precision, recall and F1 scaled to 0-100
func (r Result) Percent() (float64, float64, float64) {
	return 100 * r.Precision, 100 * r.Recall, 100 * r.F1
}

func invert(assign map[string]string) map[string]map[string]struct{} {
	clusters := make(map[string]map[string]struct{})
	for elem, cluster := range assign {
		members, ok := clusters[cluster]
		if !ok {
			members = make(map[string]struct{})
			clusters[cluster] = members
		}
		members[elem] = struct{}{}
	}
	return clusters
}

func tpFpFn(expected, guess map[string]struct{}) (tp, fp, fn int) {
	for e := range guess {
		if _, ok := expected[e]; ok {
			tp++
		} else {
			fp++
		}
	}
	fn = len(expected) - tp
	return tp, fp, fn
}

// Evaluate compares predicted clusters with ground truth. For every predicted
// element with a ground-truth label, precision is the share of its predicted
// cluster that shares its true cluster and recall the share of its true
// cluster that was predicted together with it; both are averaged over those
// elements. Elements without ground truth are counted in Missing and skipped.
func Evaluate(groundTruth, predicted map[string]string) Result {
	var res Result
	truth := invert(groundTruth)
	guess := invert(predicted)

	var sumP, sumR float64
	for elem, cluster := range predicted {
		trueCluster, ok := groundTruth[elem]
		if !ok {
			res.Missing++
			continue
		}
		tp, fp, fn := tpFpFn(truth[trueCluster], guess[cluster])
		sumP += float64(tp) / float64(tp+fp)
		sumR += float64(tp) / float64(tp+fn)
		res.Evaluated++
	}

	if res.Evaluated == 0 {
		return res
	}
	res.Precision = sumP / float64(res.Evaluated)
	res.Recall = sumR / float64(res.Evaluated)
	if res.Precision+res.Recall > 0 {
		res.F1 = 2 * res.Precision * res.Recall / (res.Precision + res.Recall)
	}
	return res
}
