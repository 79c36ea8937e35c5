package dexscan

import (
	"strings"

	"github.com/texttheater/golang-levenshtein/levenshtein"
)

// curatedBankPackages 合法银行/支付应用的包名标识
// 与声明包名高相似但不相等，是最强的单一钓鱼信号之一
var curatedBankPackages = []string{
	"com.bankofexample",
	"com.chase.sig.android",
	"com.wf.wellsfargomobile",
	"com.bankofamerica.mobilebanking",
	"com.citi.citimobile",
	"com.usbank.mobilebanking",
	"com.barclays.android.barclaysmobilebanking",
	"de.commerzbanking.mobil",
	"com.db.pwcc.dbmobile",
	"com.sbi.lotusintouch",
	"com.icicibank.imobile",
	"com.snapwork.hdfc",
	"com.axis.mobile",
	"com.paypal.android.p2pmobile",
	"net.one97.paytm",
	"com.phonepe.app",
	"com.google.android.apps.nbu.paisa.user",
}

// collisionThreshold 相似度阈值，低于它不算碰撞
const collisionThreshold = 0.80

// bankCollision 计算包名与精选银行包名表的最高相似度
// 相似度 = levenshtein ratio；包名恰好等于表内条目不算碰撞（就是真品）
// 表内条目是包名的真前缀（如 com.bank.secure 对 com.bank）直接判碰撞
func bankCollision(packageName string) (similarity float64, matched string, collision bool) {
	pkg := strings.ToLower(strings.TrimSpace(packageName))
	if pkg == "" {
		return 0, "", false
	}

	for _, entry := range curatedBankPackages {
		if pkg == entry {
			return 1.0, entry, false
		}
		ratio := levenshtein.RatioForStrings([]rune(pkg), []rune(entry), levenshtein.DefaultOptions)
		if strings.HasPrefix(pkg, entry+".") && ratio < collisionThreshold {
			// 真前缀命中：com.bankofexample.secure 之类的挂靠命名，
			// 编辑距离可能偏大，相似度按阈值保底
			ratio = collisionThreshold
		}
		if ratio > similarity {
			similarity = ratio
			matched = entry
		}
	}

	collision = similarity >= collisionThreshold
	if !collision {
		matched = ""
	}
	return similarity, matched, collision
}
