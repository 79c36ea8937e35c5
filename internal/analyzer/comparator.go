package analyzer

import (
	"fmt"
	"sort"
	"sync"

	"github.com/apkshield/apkshield-go/internal/domain"
	"github.com/apkshield/apkshield-go/internal/signing"
)

// ComparePackage 对比输入的一侧
type ComparePackage struct {
	FileName string
	Data     []byte
}

// Compare 独立分析两个包并计算结构化差异
// 两次分析并发执行且互不共享可变状态，结果与顺序无关
// 不对"合成"产物评分：差异严格是两份独立结果加集合差
func (a *Analyzer) Compare(first, second ComparePackage) (*domain.ComparisonResult, error) {
	var (
		wg      sync.WaitGroup
		results [2]*domain.AnalysisResult
		errs    [2]error
	)
	for i, pkg := range []ComparePackage{first, second} {
		wg.Add(1)
		go func(i int, pkg ComparePackage) {
			defer wg.Done()
			results[i], errs[i] = a.Analyze(pkg.FileName, pkg.Data)
		}(i, pkg)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("analyze package %d: %w", i+1, err)
		}
	}

	r1, r2 := results[0], results[1]
	return &domain.ComparisonResult{
		First:            r1,
		Second:           r2,
		PermissionDiff:   stringSetDiff(r1.Manifest.Permissions, r2.Manifest.Permissions),
		ActivityDiff:     componentDiff(r1.Manifest.Activities, r2.Manifest.Activities),
		ServiceDiff:      componentDiff(r1.Manifest.Services, r2.Manifest.Services),
		ReceiverDiff:     componentDiff(r1.Manifest.Receivers, r2.Manifest.Receivers),
		ProviderDiff:     componentDiff(r1.Manifest.Providers, r2.Manifest.Providers),
		CertificateMatch: signing.IdentityMatch(r1.Certificates, r2.Certificates),
		ScoreDelta:       r2.Score - r1.Score,
	}, nil
}

// stringSetDiff 对称差，两侧都按名称稳定排序
func stringSetDiff(first, second []string) domain.StringDiff {
	inFirst := make(map[string]struct{}, len(first))
	for _, s := range first {
		inFirst[s] = struct{}{}
	}
	inSecond := make(map[string]struct{}, len(second))
	for _, s := range second {
		inSecond[s] = struct{}{}
	}

	var diff domain.StringDiff
	for s := range inFirst {
		if _, ok := inSecond[s]; !ok {
			diff.OnlyInFirst = append(diff.OnlyInFirst, s)
		}
	}
	for s := range inSecond {
		if _, ok := inFirst[s]; !ok {
			diff.OnlyInSecond = append(diff.OnlyInSecond, s)
		}
	}
	sort.Strings(diff.OnlyInFirst)
	sort.Strings(diff.OnlyInSecond)
	return diff
}

func componentDiff(first, second []domain.Component) domain.StringDiff {
	return stringSetDiff(componentNames(first), componentNames(second))
}

func componentNames(list []domain.Component) []string {
	names := make([]string, 0, len(list))
	for _, c := range list {
		names = append(names, c.Name)
	}
	return names
}
