/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package definition

import "golang.org/x/text/language"

// Windows locale identifiers seen in character packs.
var lcidTags = map[uint16]string{
	0x0401: "ar-SA",
	0x0403: "ca-ES",
	0x0404: "zh-TW",
	0x0405: "cs-CZ",
	0x0406: "da-DK",
	0x0407: "de-DE",
	0x0408: "el-GR",
	0x0409: "en-US",
	0x040B: "fi-FI",
	0x040C: "fr-FR",
	0x040D: "he-IL",
	0x040E: "hu-HU",
	0x0410: "it-IT",
	0x0411: "ja-JP",
	0x0412: "ko-KR",
	0x0413: "nl-NL",
	0x0414: "nb-NO",
	0x0415: "pl-PL",
	0x0416: "pt-BR",
	0x0419: "ru-RU",
	0x041B: "sk-SK",
	0x041D: "sv-SE",
	0x041F: "tr-TR",
	0x0424: "sl-SI",
	0x042D: "eu-ES",
	0x0804: "zh-CN",
	0x0809: "en-GB",
	0x0807: "de-CH",
	0x080A: "es-MX",
	0x0816: "pt-PT",
	0x0C0A: "es-ES",
	0x0C07: "de-AT",
	0x0C0C: "fr-CA",
}

// TagForLCID maps a Windows LCID to a BCP 47 tag. Unknown identifiers
// fall back to the primary language table, then to language.Und.
func TagForLCID(lcid uint16) language.Tag {
	if s, ok := lcidTags[lcid]; ok {
		return language.Make(s)
	}
	// same primary language, any sublanguage
	primary := lcid & 0x03FF
	for id, s := range lcidTags {
		if id&0x03FF == primary {
			base, _ := language.Make(s).Base()
			return language.Make(base.String())
		}
	}
	return language.Und
}
