package caldav

import (
	"net/http"

	"github.com/stormdav/davcore/internal/dav/common"
)

func WriteMultiStatus(w http.ResponseWriter, ms common.MultiStatus) {
	ms.XmlnsC = common.NSCalDAV
	ms.XmlnsCS = common.NSCS

	common.WriteMultiStatus(w, ms)
}
